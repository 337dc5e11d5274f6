// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Deployment != Local {
		t.Errorf("expected deployment=local, got %s", cfg.Deployment)
	}
	if cfg.SharedMemory.Size != 256<<20 {
		t.Errorf("expected 256MiB arena, got %s", cfg.SharedMemory.Size)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoad_RequiresV6DConfig(t *testing.T) {
	t.Setenv("V6D_CONFIG", "")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error when V6D_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "V6D_CONFIG environment variable not set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadFile_YAML(t *testing.T) {
	t.Setenv("V6D_TEST_RUNTIME", "/run/test")
	t.Setenv("V6D_TEST_SEED_PASSWORD", "s3cret")
	path := writeConfig(t, "v6d.yaml", `
instance_id: 7
deployment: distributed
ipc_socket: ${V6D_TEST_RUNTIME}/v6d.sock
rpc_endpoint: 127.0.0.1:9601
shared_memory:
  path: ${V6D_TEST_UNSET:-/dev/shm}/arena
  size: 1.5GiB
cluster:
  seed: 10.0.0.1:9600
  username: worker
  password: ${V6D_TEST_SEED_PASSWORD}
  sync_interval: 2s
log_level: debug
compression: zstd
max_message_size: 67108864
auth:
  users:
    alice: $2a$10$abcdefghijklmnopqrstuu
`)
	t.Setenv("V6D_CONFIG", path)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.InstanceID != 7 || cfg.Deployment != Distributed {
		t.Errorf("instance %d, deployment %q", cfg.InstanceID, cfg.Deployment)
	}
	if cfg.IPCSocket != "/run/test/v6d.sock" {
		t.Errorf("ipc_socket not expanded: %q", cfg.IPCSocket)
	}
	if cfg.SharedMemory.Path != "/dev/shm/arena" {
		t.Errorf("default expansion failed: %q", cfg.SharedMemory.Path)
	}
	if cfg.SharedMemory.Size != 3<<29 {
		t.Errorf("size = %d, want %d", cfg.SharedMemory.Size, 3<<29)
	}
	if time.Duration(cfg.Cluster.SyncInterval) != 2*time.Second {
		t.Errorf("sync_interval = %s", cfg.Cluster.SyncInterval)
	}
	if cfg.Cluster.Username != "worker" || cfg.Cluster.Password != "s3cret" {
		t.Errorf("seed credentials = %q, %q", cfg.Cluster.Username, cfg.Cluster.Password)
	}
	// Unset keys keep their defaults.
	if time.Duration(cfg.Cluster.HeartbeatInterval) != 10*time.Second {
		t.Errorf("heartbeat_interval = %s", cfg.Cluster.HeartbeatInterval)
	}
	if cfg.MaxMessageSize != 64<<20 {
		t.Errorf("max_message_size = %d", cfg.MaxMessageSize)
	}
	if cfg.Auth.Users["alice"] == "" {
		t.Error("auth.users not loaded")
	}
	if level, err := cfg.Level(); err != nil || level != slog.LevelDebug {
		t.Errorf("Level() = %v, %v", level, err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFile_JSONC(t *testing.T) {
	path := writeConfig(t, "v6d.jsonc", `{
  // comments and trailing commas are accepted
  "instance_id": 3,
  "shared_memory": {"size": "512MiB",},
  "cluster": {"expiry": "0s"},
}`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.InstanceID != 3 || cfg.SharedMemory.Size != 512<<20 || cfg.Cluster.Expiry != 0 {
		t.Errorf("loaded %+v", cfg)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing file loaded")
	}
	path := writeConfig(t, "bad.yaml", "shared_memory:\n  size: lots\n")
	if _, err := LoadFile(path); err == nil || !strings.Contains(err.Error(), "invalid size") {
		t.Errorf("bad size: %v", err)
	}
	path = writeConfig(t, "bad-duration.yaml", "cluster:\n  sync_interval: soon\n")
	if _, err := LoadFile(path); err == nil || !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("bad duration: %v", err)
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.InstanceID = 5000
	cfg.Deployment = "mesh"
	cfg.IPCSocket = ""
	cfg.SharedMemory.Size = 100
	cfg.LogLevel = "loud"
	cfg.Compression = "gzip"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid config validated")
	}
	for _, want := range []string{"instance_id", "deployment", "ipc_socket", "shared_memory.size", "log_level", "compression"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %s: %v", want, err)
		}
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input string
		want  Size
	}{
		{"4096", 4096},
		{"64KiB", 64 << 10},
		{"1 GB", 1000 * 1000 * 1000},
		{" 2MiB ", 2 << 20},
	}
	for _, test := range tests {
		got, err := ParseSize(test.input)
		if err != nil || got != test.want {
			t.Errorf("ParseSize(%q) = %d, %v; want %d", test.input, got, err, test.want)
		}
	}
	if _, err := ParseSize("-1"); err == nil {
		t.Error("negative size parsed")
	}
}
