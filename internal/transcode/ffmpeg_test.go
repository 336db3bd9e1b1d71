package transcode

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProbeOutput(t *testing.T) {
	data := []byte(`{
		"streams": [
			{"codec_type": "audio"},
			{"codec_type": "video", "width": 1920, "height": 1080}
		],
		"format": {"duration": "63.500000"}
	}`)

	info, err := parseProbeOutput(data)
	require.NoError(t, err)

	assert.Equal(t, 63500*time.Millisecond, info.Duration)
	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, 1080, info.Height)
}

func TestParseProbeOutputErrors(t *testing.T) {
	_, err := parseProbeOutput([]byte("not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse ffprobe output")

	_, err = parseProbeOutput([]byte(`{"format": {"duration": "abc"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestParseProbeOutputNoVideoStream(t *testing.T) {
	info, err := parseProbeOutput([]byte(`{
		"streams": [{"codec_type": "audio"}],
		"format": {"duration": "10.0"}
	}`))
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, info.Duration)
	assert.Zero(t, info.Width)
	assert.Zero(t, info.Height)
}

func TestConsumeProgress(t *testing.T) {
	// 100s total; out_time_* fields are microseconds.
	stream := strings.Join([]string{
		"frame=10",
		"out_time_us=10000000",
		"progress=continue",
		"out_time_us=10200000", // same percent, not re-emitted
		"progress=continue",
		"out_time_us=55000000",
		"progress=continue",
		"out_time_us=101000000", // past the end, clamped
		"progress=end",
	}, "\n")

	var got []int
	consumeProgress(strings.NewReader(stream), 100*time.Second, func(p int) {
		got = append(got, p)
	})

	assert.Equal(t, []int{10, 55, 100}, got)
}

func TestConsumeProgressMonotonic(t *testing.T) {
	stream := strings.Join([]string{
		"out_time_us=30000000",
		"out_time_us=20000000", // stale, must not go backwards
		"out_time_us=40000000",
		"progress=end",
	}, "\n")

	var got []int
	consumeProgress(strings.NewReader(stream), 100*time.Second, func(p int) {
		got = append(got, p)
	})

	assert.Equal(t, []int{30, 40, 100}, got)

	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i], got[i-1])
	}
}

func TestConsumeProgressUnknownDuration(t *testing.T) {
	called := false
	consumeProgress(strings.NewReader("out_time_us=10000000\nprogress=end\n"), 0, func(int) {
		called = true
	})

	assert.False(t, called)
}

func TestConsumeProgressEmitsFinalOnEnd(t *testing.T) {
	var got []int
	consumeProgress(strings.NewReader("out_time_us=50000000\nprogress=end\n"), 100*time.Second, func(p int) {
		got = append(got, p)
	})

	// The tool may finish before the last out_time tick reaches 100%.
	assert.Equal(t, []int{50, 100}, got)
}

func TestFormatOffset(t *testing.T) {
	assert.Equal(t, "00:00:01", formatOffset(time.Second))
	assert.Equal(t, "00:01:30", formatOffset(90*time.Second))
	assert.Equal(t, "01:00:05", formatOffset(3605*time.Second))
}

func TestNewFFmpegDefaults(t *testing.T) {
	f := NewFFmpeg(Options{}, nil)

	assert.Equal(t, "ffmpeg", f.opts.FFmpegPath)
	assert.Equal(t, "ffprobe", f.opts.FFprobePath)
	assert.Equal(t, 10, f.opts.SegmentSeconds)
	assert.Equal(t, time.Second, f.opts.ThumbnailOffset)
	assert.Equal(t, 400, f.opts.ThumbnailWidth)
}
