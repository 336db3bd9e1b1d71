package transcode

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

// consumeProgress reads ffmpeg's -progress key=value stream and emits whole
// percentages, strictly increasing, clamped to [0,100]. With an unknown
// total duration no percentages can be derived and nothing is emitted.
func consumeProgress(r io.Reader, total time.Duration, emit func(percent int)) {
	if total <= 0 {
		// Drain so the tool never blocks on a full pipe.
		io.Copy(io.Discard, r)
		return
	}

	last := -1
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		key, value, found := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !found {
			continue
		}

		var done time.Duration
		switch key {
		case "out_time_us", "out_time_ms":
			// Both fields are microseconds; out_time_ms is misnamed
			// in ffmpeg itself.
			us, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				continue
			}
			done = time.Duration(us) * time.Microsecond

		case "progress":
			if value == "end" && last < 100 {
				emit(100)
				last = 100
			}
			continue

		default:
			continue
		}

		percent := int(done * 100 / total)
		if percent > 100 {
			percent = 100
		}

		if percent > last {
			emit(percent)
			last = percent
		}
	}
}
