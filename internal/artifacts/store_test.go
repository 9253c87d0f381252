package artifacts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Endpoint:  "minio.internal:9000",
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    "ci-artifacts",
	}
}

func TestConfig_Validate_Passes_When_Complete(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validConfig().Validate())
}

func TestConfig_Validate_RejectsSchemeInEndpoint(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Endpoint = "https://minio.internal:9000"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not include a scheme")
}

func TestConfig_Validate_RequiresAllFields(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing endpoint", func(c *Config) { c.Endpoint = "" }},
		{"missing access key", func(c *Config) { c.AccessKey = "" }},
		{"missing secret key", func(c *Config) { c.SecretKey = "" }},
		{"missing bucket", func(c *Config) { c.Bucket = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_Enabled_ReflectsEndpoint(t *testing.T) {
	t.Parallel()

	assert.True(t, validConfig().Enabled())
	assert.False(t, Config{}.Enabled())
}

func TestNew_Fails_When_ConfigInvalid(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil)
	assert.Error(t, err)
}
