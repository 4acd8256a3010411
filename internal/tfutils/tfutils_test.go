package tfutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeframe(t *testing.T) {
	d, err := ParseTimeframe("4h")
	require.NoError(t, err)
	assert.Equal(t, 4*time.Hour, d)

	_, err = ParseTimeframe("7m")
	assert.ErrorIs(t, err, ErrUnsupportedTimeframe)
}

func TestParseTimeframe_Supported(t *testing.T) {
	for _, tf := range GetSupportedTimeframes() {
		d, err := ParseTimeframe(tf)
		require.NoError(t, err, tf)
		assert.Positive(t, d, tf)
	}
	for _, tf := range []string{"", "day", "2h"} {
		_, err := ParseTimeframe(tf)
		assert.ErrorIs(t, err, ErrUnsupportedTimeframe, tf)
	}
}
