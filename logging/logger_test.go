package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	logger, err := New(DEBUG, false)
	require.NoError(t, err)
	assert.True(t, logger.V(DEFAULT).Enabled())
	assert.True(t, logger.V(DEBUG).Enabled())
	assert.False(t, logger.V(TRACE).Enabled())

	logger, err = New(DEFAULT, true)
	require.NoError(t, err)
	assert.False(t, logger.V(VERBOSE).Enabled())
}

func TestNewTestLogger(t *testing.T) {
	assert.True(t, NewTestLogger().V(TRACE).Enabled())
}

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]int{"": DEFAULT, "info": DEFAULT, "Debug": DEBUG, "trace": TRACE, "verbose": VERBOSE} {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}
