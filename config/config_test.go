package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hidemon.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// TestLoadEmptyPath 测试无配置文件时返回默认值
func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Platform.ManifestPath != "/data/system/packages.xml" {
		t.Errorf("default manifest_path = %q", cfg.Platform.ManifestPath)
	}
	if !cfg.SeccompEnabled() {
		t.Error("seccomp should default to enabled")
	}
	if cfg.Monitor.PollInterval != 20*time.Millisecond {
		t.Errorf("default poll_interval = %v", cfg.Monitor.PollInterval)
	}
}

// TestLoadOverrides 测试 yaml 覆盖与默认值合并
func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
platform:
  manifest_path: /tmp/packages.xml
  app_process: /tmp/app_process
  hide_db: /tmp/hide.db
monitor:
  poll_interval: 50ms
hide:
  source_keyword: root
  unmount_prefixes: ["/x/.hidden"]
  mask_paths: ["/x/residue"]
seccomp:
  enabled: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Platform.ManifestPath != "/tmp/packages.xml" {
		t.Errorf("manifest_path = %q", cfg.Platform.ManifestPath)
	}
	if cfg.Monitor.PollInterval != 50*time.Millisecond {
		t.Errorf("poll_interval = %v, want 50ms", cfg.Monitor.PollInterval)
	}
	// 未覆盖的字段保留默认值
	if cfg.Monitor.IdleWait != time.Minute {
		t.Errorf("idle_wait = %v, want default 1m", cfg.Monitor.IdleWait)
	}
	if cfg.SeccompEnabled() {
		t.Error("seccomp.enabled=false not honored")
	}
	if len(cfg.Hide.UnmountPrefixes) != 1 || cfg.Hide.UnmountPrefixes[0] != "/x/.hidden" {
		t.Errorf("unmount_prefixes = %v", cfg.Hide.UnmountPrefixes)
	}
}

// TestLoadValidation 测试必填字段校验
func TestLoadValidation(t *testing.T) {
	path := writeConfig(t, `
platform:
  manifest_path: ""
  app_process: /tmp/app_process
  hide_db: /tmp/hide.db
`)
	if _, err := Load(path); err == nil {
		t.Error("Load with empty manifest_path succeeded, want error")
	}
}

// TestLoadMissingFile 测试文件不存在时报错
func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/hidemon.yaml"); err == nil {
		t.Error("Load on missing file succeeded, want error")
	}
}
