package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.DeviceAddress != "D4:8A:FC:C7:CF:72" {
		t.Errorf("device address = %s", cfg.DeviceAddress)
	}
	if cfg.DeviceName != "ESP32_BLE_RFID" {
		t.Errorf("device name = %s", cfg.DeviceName)
	}
	if cfg.ScanAttempts != 5 || cfg.ScanTimeout != 8*time.Second {
		t.Errorf("scan config = %d attempts / %v", cfg.ScanAttempts, cfg.ScanTimeout)
	}
	if cfg.ConnectTimeout != 15*time.Second {
		t.Errorf("connect timeout = %v", cfg.ConnectTimeout)
	}
	if cfg.MaxRetries != 3 || cfg.RetryDelay != 5*time.Second {
		t.Errorf("retry config = %d / %v", cfg.MaxRetries, cfg.RetryDelay)
	}
	if cfg.ServiceMode {
		t.Error("service mode on by default")
	}
	if cfg.QueueBackend != "memory" {
		t.Errorf("queue backend = %s, want memory", cfg.QueueBackend)
	}
	if cfg.MetricsAddr != "" {
		t.Errorf("metrics addr = %q, want disabled by default", cfg.MetricsAddr)
	}
	if cfg.TeacherID != 1 {
		t.Errorf("teacher id = %d, want 1", cfg.TeacherID)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DEVICE_ADDRESS", "AA:BB:CC:DD:EE:FF")
	t.Setenv("SCAN_ATTEMPTS", "2")
	t.Setenv("SCAN_TIMEOUT", "3s")
	t.Setenv("SERVICE_MODE", "true")
	t.Setenv("MAX_RETRY_DELAY", "90s")
	t.Setenv("QUEUE_BACKEND", "redis")

	cfg := Load()
	if cfg.DeviceAddress != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("device address = %s", cfg.DeviceAddress)
	}
	if cfg.ScanAttempts != 2 || cfg.ScanTimeout != 3*time.Second {
		t.Errorf("scan config = %d attempts / %v", cfg.ScanAttempts, cfg.ScanTimeout)
	}
	if !cfg.ServiceMode {
		t.Error("SERVICE_MODE=true not applied")
	}
	if cfg.MaxRetryDelay != 90*time.Second {
		t.Errorf("max retry delay = %v", cfg.MaxRetryDelay)
	}
	if cfg.QueueBackend != "redis" {
		t.Errorf("queue backend = %s", cfg.QueueBackend)
	}
}

func TestLoadBadValuesFallBack(t *testing.T) {
	t.Setenv("SCAN_ATTEMPTS", "lots")
	t.Setenv("SCAN_TIMEOUT", "soon")
	t.Setenv("SERVICE_MODE", "maybe")

	cfg := Load()
	if cfg.ScanAttempts != 5 {
		t.Errorf("scan attempts = %d, want fallback 5", cfg.ScanAttempts)
	}
	if cfg.ScanTimeout != 8*time.Second {
		t.Errorf("scan timeout = %v, want fallback 8s", cfg.ScanTimeout)
	}
	if cfg.ServiceMode {
		t.Error("invalid SERVICE_MODE enabled service mode")
	}
}
