package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DATA_DIR", "")
	t.Setenv("ERP_SYNC_INTERVAL_MINUTES", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.DataDir != "data" {
		t.Fatalf("DataDir = %q, want data", cfg.DataDir)
	}
	if cfg.ERPSyncInterval != 10*time.Minute {
		t.Fatalf("ERPSyncInterval = %s, want 10m", cfg.ERPSyncInterval)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("Address() = %q", cfg.Address())
	}
}

func TestLoadRejectsBogusSyncInterval(t *testing.T) {
	t.Setenv("ERP_SYNC_INTERVAL_MINUTES", "not-a-number")

	cfg := Load()
	if cfg.ERPSyncInterval != 10*time.Minute {
		t.Fatalf("ERPSyncInterval = %s, want fallback 10m", cfg.ERPSyncInterval)
	}
}
