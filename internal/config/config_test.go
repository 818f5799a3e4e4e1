package config

import (
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("MONGODB_DATABASE", "wanzdb_test")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("JWT_SECRET", "testsecret123456789012345678901234")
	t.Setenv("RATE_LIMIT_ENABLED", "true")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.MongoDB.URI == "" || cfg.Redis.Host == "" {
		t.Fatalf("unexpected empty config values: %+v", cfg)
	}
	if cfg.MongoDB.Timeout != 10*time.Second || cfg.MongoDB.ConnectAttempts != 5 {
		t.Fatalf("unexpected mongo defaults: %+v", cfg.MongoDB)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.RPS != 2.5 || cfg.RateLimit.Burst != 20 {
		t.Fatalf("unexpected rate limit config: %+v", cfg.RateLimit)
	}
	if got := cfg.RedisAddr(); got != "localhost:6379" {
		t.Fatalf("RedisAddr() = %q", got)
	}
}

func TestLoadConfig_MongoOptional(t *testing.T) {
	t.Setenv("MONGODB_URI", "")
	t.Setenv("JWT_SECRET", "s")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.MongoDB.URI != "" {
		t.Fatalf("expected empty MongoDB URI, got %q", cfg.MongoDB.URI)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]Config{
		"no verifier":         {},
		"oidc without client": {Auth: AuthConfig{OIDCIssuer: "https://id.example.com"}},
		"redis w/o host":      {Auth: AuthConfig{JWTSecret: "s"}, RateLimit: RateLimitConfig{UseRedis: true}},
		"bad rate":            {Auth: AuthConfig{JWTSecret: "s"}, RateLimit: RateLimitConfig{Enabled: true}},
		"mongo without db":    {Auth: AuthConfig{JWTSecret: "s"}, MongoDB: MongoDBConfig{URI: "mongodb://x"}},
	}
	for name, cfg := range cases {
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}

	ok := Config{Auth: AuthConfig{AllowInsecure: true}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok.MongoDB.ConnectAttempts != 1 {
		t.Fatalf("ConnectAttempts should be clamped to 1, got %d", ok.MongoDB.ConnectAttempts)
	}
}
