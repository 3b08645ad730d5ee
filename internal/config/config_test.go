package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// noEnvFile keeps a developer's local .env out of the tests.
const noEnvFile = "--env-file="

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load([]string{noEnvFile, "--jwt-key", "k"})
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, ":9090", cfg.GRPCAddr)
	require.Equal(t, 9*time.Minute, cfg.MediaReadTTL)
	require.Equal(t, 15*time.Minute, cfg.VaultSessionTTL)
	require.Equal(t, time.Minute, cfg.ShareRedeemTTL)
	require.Equal(t, 5*time.Minute, cfg.SweepInterval)
	require.Equal(t, 720*time.Hour, cfg.ShareRetention)
	require.Equal(t, 5, cfg.LimiterMaxFails)
	require.Empty(t, cfg.RedisAddr)
	require.Empty(t, cfg.CORSOrigins)
	require.False(t, cfg.Dev)
}

func TestLoad_RequiresJWTKey(t *testing.T) {
	_, err := Load([]string{noEnvFile})
	require.ErrorContains(t, err, "jwt-key")
}

func TestLoad_EnvAndFlagPrecedence(t *testing.T) {
	t.Setenv("MEDIAVAULT_JWT_KEY", "from-env")
	t.Setenv("MEDIAVAULT_HTTP_ADDR", ":7000")
	t.Setenv("MEDIAVAULT_MEDIA_READ_TTL", "5m")
	t.Setenv("MEDIAVAULT_CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("MEDIAVAULT_DEV", "true")

	cfg, err := Load([]string{noEnvFile, "--http-addr", ":7001"})
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.JWTKey)
	require.Equal(t, ":7001", cfg.HTTPAddr)
	require.Equal(t, 5*time.Minute, cfg.MediaReadTTL)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	require.True(t, cfg.Dev)
}

func TestLoad_DotEnvDoesNotOverrideEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("MEDIAVAULT_JWT_KEY=dotenv-key\nMEDIAVAULT_REDIS_DB=3\n"), 0o600))
	t.Setenv("MEDIAVAULT_REDIS_DB", "7")
	t.Cleanup(func() { _ = os.Unsetenv("MEDIAVAULT_JWT_KEY") })

	cfg, err := Load([]string{"--env-file", path})
	require.NoError(t, err)
	require.Equal(t, "dotenv-key", cfg.JWTKey)
	require.Equal(t, 7, cfg.RedisDB)
}

func TestLoad_BadFlag(t *testing.T) {
	_, err := Load([]string{noEnvFile, "--no-such-flag"})
	require.Error(t, err)

	_, err = Load([]string{noEnvFile, "--jwt-key", "k", "--sweep-interval", "soon"})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load([]string{noEnvFile, "--jwt-key", "k"})
		require.NoError(t, err)
		return cfg
	}

	cases := map[string]func(c *Config){
		"media ttl above max":   func(c *Config) { c.MediaReadTTL = 11 * time.Minute },
		"vault ttl above max":   func(c *Config) { c.VaultSessionTTL = time.Hour },
		"share ttl zero":        func(c *Config) { c.ShareRedeemTTL = 0 },
		"negative sweep":        func(c *Config) { c.SweepInterval = -time.Second },
		"no fails":              func(c *Config) { c.LimiterMaxFails = 0 },
		"tls cert without key":  func(c *Config) { c.TLSCert = "cert.pem" },
		"empty dsn":             func(c *Config) { c.DSN = "" },
		"origin without scheme": func(c *Config) { c.CORSOrigins = []string{"app.example"} },
		"bad trusted proxy":     func(c *Config) { c.TrustedProxies = []string{"proxy.local"} },
	}
	for name, mut := range cases {
		c := base()
		mut(c)
		require.Error(t, c.Validate(), name)
	}

	c := base()
	c.MediaReadTTL = MaxMediaReadTTL
	require.NoError(t, c.Validate())
}

func TestString_MasksSecrets(t *testing.T) {
	c := &Config{
		DSN:           "postgres://app:hunter2@db:5432/mv",
		JWTKey:        "jwt-secret",
		RedisPassword: "redis-secret",
	}
	s := c.String()
	require.NotContains(t, s, "hunter2")
	require.NotContains(t, s, "jwt-secret")
	require.NotContains(t, s, "redis-secret")
	require.Contains(t, s, "postgres://app:********@db:5432/mv")
}

func TestMaskDSN_KeywordAndQuery(t *testing.T) {
	cases := map[string]string{
		"host=db user=app password=hunter2 dbname=mv":          "host=db user=app password=******** dbname=mv",
		"host=db password = 'hunter 2' sslmode=disable":        "host=db password = ******** sslmode=disable",
		"postgres://db/mv?user=app&password=hunter2&sslmode=x": "postgres://db/mv?user=app&password=********&sslmode=x",
		"host=db user=app":                                     "host=db user=app",
	}
	for in, want := range cases {
		require.Equal(t, want, maskDSN(in), in)
	}
}

func TestLoad_TrustedProxies(t *testing.T) {
	t.Setenv("MEDIAVAULT_JWT_KEY", "k")
	cfg, err := Load([]string{noEnvFile, "--trusted-proxies=10.0.0.0/8, 192.0.2.1"})
	require.NoError(t, err)
	require.Equal(t, []string{"10.0.0.0/8", "192.0.2.1"}, cfg.TrustedProxies)

	cfg, err = Load([]string{noEnvFile})
	require.NoError(t, err)
	require.Empty(t, cfg.TrustedProxies)
}
