package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
database:
  host: db.local
  port: 5433
  user: pos
  password: secret
  database: restaurant_pos
rabbitmq:
  host: mq.local
  port: 5673
  user: guest
  password: guest
scheduler:
  interval: 30s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Database.Host != "db.local" {
		t.Fatalf("expected database.host db.local, got %q", cfg.Database.Host)
	}
	if cfg.RabbitMQ.Port != 5673 {
		t.Fatalf("expected rabbitmq.port 5673, got %d", cfg.RabbitMQ.Port)
	}
	if cfg.Scheduler.Interval != 30*time.Second {
		t.Fatalf("expected scheduler.interval 30s, got %v", cfg.Scheduler.Interval)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  host: localhost
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.HTTP.Port != 3000 {
		t.Fatalf("expected default http.port 3000, got %d", cfg.HTTP.Port)
	}
	if cfg.Scheduler.Interval != 60*time.Second {
		t.Fatalf("expected default scheduler.interval 60s, got %v", cfg.Scheduler.Interval)
	}
	if cfg.Gateway.Timeout != 10*time.Second {
		t.Fatalf("expected default gateway.timeout 10s, got %v", cfg.Gateway.Timeout)
	}
}

func TestLoadURLs(t *testing.T) {
	path := writeConfig(t, `
database:
  host: db.local
  port: 5432
  user: u
  password: p
  database: pos
rabbitmq:
  host: mq.local
  port: 5672
  user: g
  password: s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got, want := cfg.DatabaseURL(), "postgres://u:p@db.local:5432/pos?sslmode=disable"; got != want {
		t.Fatalf("DatabaseURL = %q, want %q", got, want)
	}
	if got, want := cfg.RabbitMQURL(), "amqp://g:s@mq.local:5672/"; got != want {
		t.Fatalf("RabbitMQURL = %q, want %q", got, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
