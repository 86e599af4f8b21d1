package term

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/backmassage/courseforge/internal/config"
)

func TestConfigure(t *testing.T) {
	t.Cleanup(func() { Configure(config.ColorNever) })

	assert.True(t, Configure(config.ColorAlways))
	assert.True(t, Enabled())
	assert.Equal(t, Red+"x"+NC, Paint(Red, "x"))

	assert.False(t, Configure(config.ColorNever))
	assert.False(t, Enabled())
	assert.Equal(t, "x", Paint(Red, "x"))
}

func TestConfigure_AutoEnv(t *testing.T) {
	t.Cleanup(func() { Configure(config.ColorNever) })

	t.Setenv("NO_COLOR", "1")
	t.Setenv("CLICOLOR_FORCE", "1")
	assert.False(t, Configure(config.ColorAuto), "NO_COLOR wins")

	t.Setenv("NO_COLOR", "")
	assert.True(t, Configure(config.ColorAuto))

	t.Setenv("CLICOLOR_FORCE", "")
	t.Setenv("TERM", "dumb")
	assert.False(t, Configure(config.ColorAuto))
}

func TestPad(t *testing.T) {
	Configure(config.ColorNever)
	assert.Equal(t, "ab   ", Pad(Red, "ab", 5))

	Configure(config.ColorAlways)
	t.Cleanup(func() { Configure(config.ColorNever) })
	assert.Equal(t, Red+"ab   "+NC, Pad(Red, "ab", 5))
}

func TestWidth(t *testing.T) {
	t.Setenv("COLUMNS", "42")
	assert.Equal(t, 42, Width())
	t.Setenv("COLUMNS", "nope")
	assert.Equal(t, DefaultWidth, Width())
}
