package config_test

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/lifecoach/pkg/config"
)

type basicConfig struct {
	Name    string        `env:"CONFIG_TEST_NAME" envDefault:"default"`
	Port    int           `env:"CONFIG_TEST_PORT" envDefault:"8080"`
	Timeout time.Duration `env:"CONFIG_TEST_TIMEOUT" envDefault:"5s"`
}

type requiredConfig struct {
	Key string `env:"CONFIG_TEST_REQUIRED,required"`
}

type validatedConfig struct {
	Mode string `env:"CONFIG_TEST_MODE" envDefault:"bad"`
}

func (c *validatedConfig) Validate() error {
	if c.Mode != "live" && c.Mode != "test" {
		return errors.New("mode must be live or test")
	}
	return nil
}

// Tests mutate process env and the shared cache, so they are not parallel.

func TestLoad(t *testing.T) {
	config.ResetCache()
	t.Setenv("CONFIG_TEST_NAME", "lifecoach")

	var cfg basicConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "lifecoach", cfg.Name)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.Timeout)

	t.Run("cached per type", func(t *testing.T) {
		t.Setenv("CONFIG_TEST_NAME", "changed")
		var again basicConfig
		require.NoError(t, config.Load(&again))
		assert.Equal(t, "lifecoach", again.Name)
	})

	t.Run("reset cache", func(t *testing.T) {
		t.Setenv("CONFIG_TEST_NAME", "changed")
		config.ResetCache()
		var again basicConfig
		require.NoError(t, config.Load(&again))
		assert.Equal(t, "changed", again.Name)
	})
}

func TestLoad_Errors(t *testing.T) {
	config.ResetCache()

	assert.ErrorIs(t, config.Load[basicConfig](nil), config.ErrNilPointer)

	var req requiredConfig
	assert.ErrorIs(t, config.Load(&req), config.ErrParsingConfig)
	assert.Panics(t, func() { config.MustLoad(&req) })

	var val validatedConfig
	assert.ErrorIs(t, config.Load(&val), config.ErrInvalidConfig)

	t.Setenv("CONFIG_TEST_MODE", "live")
	require.NoError(t, config.Load(&val), "invalid values are not cached")
	assert.Equal(t, "live", val.Mode)
}

func TestLoadEnv(t *testing.T) {
	config.ResetCache()
	t.Setenv("CONFIG_TEST_NAME", "")
	t.Setenv("CONFIG_TEST_PORT", "")

	require.NoError(t, config.LoadEnv("testdata/.env.test"))
	assert.Equal(t, "from_file", os.Getenv("CONFIG_TEST_NAME"))

	var cfg basicConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, 9090, cfg.Port)

	assert.ErrorIs(t, config.LoadEnv("testdata/missing.env"), config.ErrLoadingEnvFile)
	assert.NoError(t, config.LoadEnv())
}
