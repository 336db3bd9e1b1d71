package media

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "transient download error",
			err:  &TransientError{Op: "download", Err: errors.New("connection reset")},
			want: true,
		},
		{
			name: "transient upload error wrapped",
			err:  fmt.Errorf("step failed: %w", &TransientError{Op: "upload", Err: errors.New("timeout")}),
			want: true,
		},
		{
			name: "codec error",
			err:  &CodecError{Stage: "segment", Err: errors.New("exit status 1")},
			want: true,
		},
		{
			name: "validation error",
			err:  ErrUnsupportedMediaType,
			want: false,
		},
		{
			name: "exhausted retries",
			err:  ErrRetriesExhausted,
			want: false,
		},
		{
			name: "plain error",
			err:  errors.New("something else"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	te := &TransientError{Op: "download", Err: errors.New("EOF")}
	assert.Equal(t, "transient download error: EOF", te.Error())
	assert.Equal(t, "EOF", te.Unwrap().Error())

	ce := &CodecError{Stage: "thumbnail", Err: errors.New("exit status 1")}
	assert.Equal(t, "codec error at thumbnail: exit status 1", ce.Error())
}

func TestAssetIsTerminal(t *testing.T) {
	assert.False(t, (&Asset{Status: StatusPending}).IsTerminal())
	assert.False(t, (&Asset{Status: StatusProcessing}).IsTerminal())
	assert.True(t, (&Asset{Status: StatusReady}).IsTerminal())
	assert.True(t, (&Asset{Status: StatusFailed}).IsTerminal())
}
