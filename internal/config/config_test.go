package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Port:            "8081",
		Namespace:       "default-app-id",
		DataBackend:     "memory",
		SQLiteDBPath:    "./data/tally.db",
		IdentityBackend: "memory",
		AMQPExchange:    "tally.changes",
	}
}

func TestValidateDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("default-shaped config should validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Port = "nope" }, "invalid port"},
		{"port out of range", func(c *Config) { c.Port = "70000" }, "invalid port"},
		{"empty namespace", func(c *Config) { c.Namespace = " " }, "namespace"},
		{"unknown backend", func(c *Config) { c.DataBackend = "postgres" }, "invalid data backend"},
		{"sqlite without path", func(c *Config) { c.DataBackend = "sqlite"; c.SQLiteDBPath = "" }, "SQLite database path"},
		{"unknown identity", func(c *Config) { c.IdentityBackend = "ldap" }, "invalid identity backend"},
		{"google without client", func(c *Config) { c.IdentityBackend = "google" }, "GOOGLE_OAUTH_CLIENT"},
		{"bad amqp scheme", func(c *Config) { c.AMQPURL = "http://localhost" }, "AMQP URL scheme"},
		{"amqp without exchange", func(c *Config) { c.AMQPURL = "amqp://localhost"; c.AMQPExchange = "" }, "exchange name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATA_BACKEND", "IDENTITY_BACKEND", "TALLY_NAMESPACE"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8081" {
		t.Fatalf("default port: %s", cfg.Port)
	}
	if cfg.DataBackend != "memory" || cfg.IdentityBackend != "memory" {
		t.Fatalf("default backends: %s/%s", cfg.DataBackend, cfg.IdentityBackend)
	}
	if cfg.Namespace == "" {
		t.Fatalf("namespace default missing")
	}
}
