package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConf(t *testing.T) {
	t.Setenv("APP_NAME", "  statsig ")
	t.Setenv("APP_DEBUG", "yes")
	t.Setenv("APP_WORKERS", "4")
	t.Setenv("APP_BAD_INT", "four")
	t.Setenv("APP_RATIO", "0.25")

	c := New().Prefix("APP_")
	assert.Equal(t, "APP_NAME", c.Key("NAME"))
	assert.Equal(t, "statsig", c.Get("NAME", "x"))
	assert.Equal(t, "x", c.Get("MISSING", "x"))
	assert.True(t, c.GetBool("DEBUG", false))
	assert.True(t, c.GetBool("MISSING", true))
	assert.Equal(t, 4, c.GetInt("WORKERS", 1))
	assert.Equal(t, 1, c.GetInt("BAD_INT", 1))
	assert.Equal(t, 0.25, c.GetFloat("RATIO", 1))

	_, ok := c.Lookup("MISSING")
	assert.False(t, ok)
}
