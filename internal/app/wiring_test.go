package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"eventlog/api/internal/config"
	"eventlog/api/internal/email"
	"eventlog/api/internal/syncer"
)

func testConfig(t *testing.T) config.Config {
	dir := t.TempDir()
	return config.Config{
		DatabaseURL:    "sqlite://" + filepath.Join(dir, "eventlog.db"),
		ReposDir:       filepath.Join(dir, "repos"),
		OutboxDir:      filepath.Join(dir, "outbox"),
		Timezone:       "UTC",
		FuzzyThreshold: 50,
		CompactGap:     5 * time.Minute,
	}
}

func TestWireDefaultsToOutboxTransport(t *testing.T) {
	c, err := Wire(context.Background(), testConfig(t), nil)
	if err != nil {
		t.Fatalf("Wire() error = %v", err)
	}
	defer c.Close()

	if _, ok := c.Transport.(*syncer.DirTransport); !ok {
		t.Fatalf("expected outbox transport, got %T", c.Transport)
	}
	if c.Redis != nil || c.Meili != nil || c.Archive != nil {
		t.Fatal("optional backends should stay disabled")
	}
	if err := c.Service().Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if err := c.Reindex(context.Background(), 10); err != nil {
		t.Fatalf("Reindex() without meilisearch should be a no-op: %v", err)
	}
}

func TestWireUsesSMTPWhenConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.SMTPHost = "smtp.example.com"
	cfg.SMTPPort = "587"
	cfg.SMTPFrom = "sync@example.com"
	cfg.SMTPTo = []string{"cal@example.com"}

	c, err := Wire(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Wire() error = %v", err)
	}
	defer c.Close()
	if _, ok := c.Transport.(*email.Transport); !ok {
		t.Fatalf("expected smtp transport, got %T", c.Transport)
	}
}

func TestWireRejectsBadTimezone(t *testing.T) {
	cfg := testConfig(t)
	cfg.Timezone = "Mars/Olympus"
	if _, err := Wire(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected timezone error")
	}
}
