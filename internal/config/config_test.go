package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Spot.PollInterval != 5*time.Second {
		t.Errorf("Spot.PollInterval = %v, want 5s", cfg.Spot.PollInterval)
	}
	if cfg.Spot.DefaultRadius != 100 || cfg.Spot.MinRadius != 10 || cfg.Spot.MaxRadius != 500 {
		t.Errorf("Spot radius = %v [%v, %v], want 100 [10, 500]", cfg.Spot.DefaultRadius, cfg.Spot.MinRadius, cfg.Spot.MaxRadius)
	}
	if cfg.Database.Database != "spotit" {
		t.Errorf("Database.Database = %q, want spotit", cfg.Database.Database)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SPOT_POLL_INTERVAL", "2s")
	t.Setenv("SERVER_CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("SPOT_FETCH_ATTEMPTS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Spot.PollInterval != 2*time.Second {
		t.Errorf("Spot.PollInterval = %v, want 2s", cfg.Spot.PollInterval)
	}
	if len(cfg.Server.CorsOrigins) != 2 {
		t.Errorf("CorsOrigins = %v, want two origins", cfg.Server.CorsOrigins)
	}
	if cfg.Spot.FetchAttempts != 3 {
		t.Errorf("unparsable value should fall back to default, got %d", cfg.Spot.FetchAttempts)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "default secret in production",
			env:     map[string]string{"APP_ENV": "production"},
			wantErr: "token secret",
		},
		{
			name:    "inverted radius bounds",
			env:     map[string]string{"APP_ENV": "development", "SPOT_MIN_RADIUS": "600"},
			wantErr: "radius bounds",
		},
		{
			name:    "default radius out of bounds",
			env:     map[string]string{"APP_ENV": "development", "SPOT_DEFAULT_RADIUS": "5"},
			wantErr: "default spot radius",
		},
		{
			name: "production with secret",
			env:  map[string]string{"APP_ENV": "production", "AUTH_TOKEN_SECRET": "s3cret"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Load() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	dsn := DatabaseConfig{
		Host: "db", Port: 5432, User: "u", Password: "p", Database: "spotit",
		SSLMode: "disable", MaxOpenConns: 10, MaxIdleConns: 2, MaxLifetime: time.Minute,
	}.DSN()

	want := "postgres://u:p@db:5432/spotit?sslmode=disable&pool_max_conns=10&pool_min_conns=2&pool_max_conn_lifetime=1m0s"
	if dsn != want {
		t.Errorf("DSN() = %q, want %q", dsn, want)
	}
}
