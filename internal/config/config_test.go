package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{"JWT_SECRET": "s3cret"})
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 168*time.Hour, cfg.Auth.TokenTTL)
	assert.True(t, cfg.Market.DefaultCommission.IsZero())
	assert.Equal(t, time.Minute, cfg.Jobs.EvaluateEvery)
	assert.Equal(t, 5*time.Minute, cfg.Jobs.ExpireOffersEvery)
	assert.Empty(t, cfg.Catalog.Path)
}

func TestLoadFromOverrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"JWT_SECRET":                "s3cret",
		"DB_DRIVER":                 "sqlite",
		"DB_SQLITE_PATH":            "/tmp/economy.db",
		"CORS_ALLOWED_ORIGINS":      "https://a.example,https://b.example",
		"MARKET_DEFAULT_COMMISSION": "0.025",
		"JOBS_EVALUATE_EVERY":       "30s",
		"CATALOG_PATH":              "catalog.yaml",
	})
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/economy.db", cfg.Database.SQLitePath)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "0.025", cfg.Market.DefaultCommission.String())
	assert.Equal(t, 30*time.Second, cfg.Jobs.EvaluateEvery)
	assert.Equal(t, "catalog.yaml", cfg.Catalog.Path)
}

func TestLoadFromRejects(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{"missing secret", map[string]string{}},
		{"unknown driver", map[string]string{"JWT_SECRET": "x", "DB_DRIVER": "mysql"}},
		{"commission above one", map[string]string{"JWT_SECRET": "x", "MARKET_DEFAULT_COMMISSION": "1.5"}},
		{"negative commission", map[string]string{"JWT_SECRET": "x", "MARKET_DEFAULT_COMMISSION": "-0.1"}},
		{"zero interval", map[string]string{"JWT_SECRET": "x", "JOBS_EXPIRE_OFFERS_EVERY": "0s"}},
		{"bad duration", map[string]string{"JWT_SECRET": "x", "JWT_TTL": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.vars)
			assert.Error(t, err)
		})
	}
}

func TestDatabaseURLs(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", db.DSN())
	assert.Equal(t, "postgres://u:p@db:5432/n?sslmode=disable", db.URL())
}
