package db

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/connsync/internal/config"
)

func TestPoolConfig(t *testing.T) {
	t.Parallel()

	passwordFile := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(passwordFile, []byte("secret"), 0600))

	valid := func() *config.DatabaseConfig {
		return &config.DatabaseConfig{
			Host:         "localhost",
			Port:         5432,
			User:         "connsync",
			PasswordFile: passwordFile,
			Database:     "connsync",
			SSLMode:      "disable",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*config.DatabaseConfig)
		wantErr string
	}{
		{
			name: "defaults",
		},
		{
			name:    "missing host",
			mutate:  func(c *config.DatabaseConfig) { c.Host = "" },
			wantErr: "database host is required",
		},
		{
			name:    "missing port",
			mutate:  func(c *config.DatabaseConfig) { c.Port = 0 },
			wantErr: "database port is required",
		},
		{
			name:    "missing user",
			mutate:  func(c *config.DatabaseConfig) { c.User = "" },
			wantErr: "database user is required",
		},
		{
			name:    "missing database",
			mutate:  func(c *config.DatabaseConfig) { c.Database = "" },
			wantErr: "database name is required",
		},
		{
			name:    "bad lifetime",
			mutate:  func(c *config.DatabaseConfig) { c.ConnMaxLifetime = "forever" },
			wantErr: "invalid connection max lifetime",
		},
		{
			name: "idle capped by open",
			mutate: func(c *config.DatabaseConfig) {
				c.MaxOpenConns = 2
				c.MaxIdleConns = 10
				c.ConnMaxLifetime = "1h"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}

			poolCfg, err := PoolConfig(cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "localhost", poolCfg.ConnConfig.Host)
			assert.Equal(t, "secret", poolCfg.ConnConfig.Password)
			assert.Equal(t, defaultConnectTimeout, poolCfg.ConnConfig.ConnectTimeout)
			if cfg.MaxOpenConns == 2 {
				assert.Equal(t, int32(2), poolCfg.MaxConns)
				assert.Equal(t, int32(2), poolCfg.MinConns)
				assert.Equal(t, time.Hour, poolCfg.MaxConnLifetime)
			} else {
				assert.Equal(t, int32(defaultMaxOpenConns), poolCfg.MaxConns)
				assert.Equal(t, int32(defaultMaxIdleConns), poolCfg.MinConns)
			}
		})
	}
}

func TestPoolConfig_Nil(t *testing.T) {
	t.Parallel()

	_, err := PoolConfig(nil)
	require.Error(t, err)
}
