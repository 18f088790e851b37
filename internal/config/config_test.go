package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORTFOLIO_ENVIRONMENT", "production")
	t.Setenv("PORTFOLIO_POSTGRES_DSN", "postgres://app@db/portfolio")
	t.Setenv("PORTFOLIO_SECURITY_JWTACCESSSECRET", "access")
	t.Setenv("PORTFOLIO_SECURITY_JWTREFRESHSECRET", "refresh")
	t.Setenv("PORTFOLIO_SECURITY_JWTACCESSTTL", "5m")
	t.Setenv("PORTFOLIO_ALLOWCORSORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "postgres://app@db/portfolio", cfg.Postgres.DSN)
	assert.Equal(t, 5*time.Minute, cfg.Security.JWTAccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Security.JWTRefreshTTL)
	assert.Equal(t, 5, cfg.Security.LoginMaxAttempts)
	assert.Equal(t, int64(2<<20), cfg.Storage.MaxAvatarSize)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowCORSOrigins)
}

func TestLoadRejectsMissingOrSharedSecrets(t *testing.T) {
	t.Setenv("PORTFOLIO_SECURITY_JWTACCESSSECRET", "same")
	t.Setenv("PORTFOLIO_SECURITY_JWTREFRESHSECRET", "")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("PORTFOLIO_SECURITY_JWTREFRESHSECRET", "same")
	_, err = Load()
	assert.ErrorContains(t, err, "must differ")
}
