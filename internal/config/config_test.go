package config

import "testing"

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/kori")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
}

func TestLoadDefaultsIdempotencyStoreToPostgres(t *testing.T) {
	setRequired(t)
	t.Setenv("IDEMPOTENCY_STORE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.IdempotencyStore != IdempotencyStorePostgres {
		t.Fatalf("idempotency store = %q, want %q", cfg.IdempotencyStore, IdempotencyStorePostgres)
	}
}

func TestLoadAcceptsRedisIdempotencyStore(t *testing.T) {
	setRequired(t)
	t.Setenv("IDEMPOTENCY_STORE", "Redis")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.IdempotencyStore != IdempotencyStoreRedis {
		t.Fatalf("idempotency store = %q, want %q", cfg.IdempotencyStore, IdempotencyStoreRedis)
	}
}

func TestLoadRejectsUnknownIdempotencyStore(t *testing.T) {
	setRequired(t)
	t.Setenv("IDEMPOTENCY_STORE", "memcached")

	if _, err := Load(); err == nil {
		t.Fatalf("load accepted an unknown idempotency store")
	}
}
