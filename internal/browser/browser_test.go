package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.True(t, opts.Headless)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, 1920, opts.ViewportWidth)
	assert.Equal(t, 1080, opts.ViewportHeight)
	assert.Equal(t, "en-US", opts.Locale)
}

func TestOptions_TimeoutMillis(t *testing.T) {
	assert.Equal(t, float64(30000), DefaultOptions().timeoutMillis())
	assert.Equal(t, float64(0), (&Options{Timeout: 0}).timeoutMillis(), "zero disables the timeout")
	assert.Equal(t, float64(0), (&Options{Timeout: -time.Second}).timeoutMillis())
}

func TestCheckDocument(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"comparison page", `<html><body><div class="compare-header"></div></body></html>`, nil},
		{"empty", "  ", ErrEmptyDocument},
		{"blank page", "<html><head></head><body></body></html>", ErrEmptyDocument},
		{"cloudflare interstitial", `<html><head><title>Just a moment...</title></head></html>`, ErrChallenge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckDocument(tt.content)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
