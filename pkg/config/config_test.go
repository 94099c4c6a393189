package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSyncFromEnv(t *testing.T) {
	t.Setenv("HOKM_COMPRESSION_THRESHOLD", "1024")
	t.Setenv("HOKM_HISTORY_MAX_AGE", "1m")
	t.Setenv("HOKM_HISTORY_SIZE", "not-a-number")

	cfg := SyncFromEnv()
	assert.Equal(t, 1024, cfg.CompressionThreshold)
	assert.Equal(t, time.Minute, cfg.HistoryMaxAge)
	assert.Equal(t, DefaultSync().HistorySize, cfg.HistorySize)
	assert.Equal(t, 10, cfg.MaxReplayDeltas)
	assert.True(t, cfg.DebounceActions)
}

func TestSyncFromEnv_DebounceActions(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{value: "false", want: false},
		{value: "0", want: false},
		{value: "true", want: true},
		{value: "maybe", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("HOKM_DEBOUNCE_ACTIONS", tt.value)
			assert.Equal(t, tt.want, SyncFromEnv().DebounceActions)
		})
	}
}
