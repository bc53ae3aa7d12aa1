package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

type testConfig struct {
	DB     DBConfig     `yaml:"db"`
	JWT    JWTConfig    `yaml:"jwt"`
	Server ServerConfig `yaml:"server"`
}

func TestLoadConfig(t *testing.T) {
	t.Run("env file overrides base", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "base.yaml", "db:\n  host: localhost\n  port: 5432\nserver:\n  port: \":8080\"\n")
		writeFile(t, dir, "production.yaml", "db:\n  host: db.internal\n")

		var cfg testConfig
		if err := Decode("production", dir, &cfg); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if cfg.DB.Host != "db.internal" {
			t.Errorf("expected host db.internal, got %q", cfg.DB.Host)
		}
		if cfg.DB.Port != 5432 {
			t.Errorf("expected nested port to survive merge, got %d", cfg.DB.Port)
		}
		if cfg.Server.Port != ":8080" {
			t.Errorf("expected server port :8080, got %q", cfg.Server.Port)
		}
	})

	t.Run("missing env file falls back to base", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "base.yaml", "db:\n  host: localhost\n")

		var cfg testConfig
		if err := Decode("staging", dir, &cfg); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if cfg.DB.Host != "localhost" {
			t.Errorf("expected host localhost, got %q", cfg.DB.Host)
		}
	})

	t.Run("secrets substitute placeholders", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "base.yaml", "jwt:\n  secret: ${JWT_SIGNING_KEY}\ndb:\n  password: ${UNSET_PLACEHOLDER_FOR_TEST}\n")
		writeFile(t, dir, "secrets.env", "# comment\nJWT_SIGNING_KEY=\"s3cret\"\n")

		var cfg testConfig
		if err := Decode("local", dir, &cfg); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if cfg.JWT.Secret != "s3cret" {
			t.Errorf("expected substituted secret, got %q", cfg.JWT.Secret)
		}
		if cfg.DB.Password != "${UNSET_PLACEHOLDER_FOR_TEST}" {
			t.Errorf("expected unknown placeholder kept, got %q", cfg.DB.Password)
		}
	})

	t.Run("system env substitutes placeholders", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "base.yaml", "jwt:\n  secret: ${EZTODO_TEST_SECRET}\n")
		t.Setenv("EZTODO_TEST_SECRET", "from-env")

		var cfg testConfig
		if err := Decode("", dir, &cfg); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if cfg.JWT.Secret != "from-env" {
			t.Errorf("expected from-env, got %q", cfg.JWT.Secret)
		}
	})

	t.Run("missing base is an error", func(t *testing.T) {
		if _, err := LoadConfig("local", t.TempDir()); err == nil {
			t.Fatal("expected error for missing base.yaml")
		}
	})
}

func TestOverrideFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "pg")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_SAMPLE_RATIO", "0.5")

	db := DBConfig{Host: "localhost", Port: 5432}
	OverrideDBFromEnv(&db)
	if db.Host != "pg" || db.Port != 6543 {
		t.Errorf("unexpected db config: %+v", db)
	}

	rc := RedisConfig{}
	OverrideRedisFromEnv(&rc)
	if rc.DB != 3 {
		t.Errorf("expected redis db 3, got %d", rc.DB)
	}

	oc := OtelConfig{}
	OverrideOtelFromEnv(&oc)
	if !oc.Enabled || oc.SampleRatio != 0.5 {
		t.Errorf("unexpected otel config: %+v", oc)
	}
}
