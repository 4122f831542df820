package monitor

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/zqzqsb/hidemon/config"
	"github.com/zqzqsb/hidemon/hidelist"
)

func newTestMonitor(t *testing.T, manifest string) *Monitor {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "packages.xml")
	if err := os.WriteFile(path, []byte(manifest), 0600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	cfg := config.Default()
	cfg.Platform.ManifestPath = path
	return New(cfg, []hidelist.Entry{
		{Package: "com.ex", Process: "com.ex"},
		{Package: "com.ex", Process: "com.ex:push"},
		{Package: "com.shared", Process: "com.shared"},
	})
}

// TestUpdateUIDMap 测试从清单文件整体重建索引与查询
func TestUpdateUIDMap(t *testing.T) {
	m := newTestMonitor(t, `<packages>
  <package name="com.ex" userId="10123" />
  <package name="com.shared" sharedUserId="10200" />
  <package name="com.unlisted" userId="10300" />
</packages>
`)

	if err := m.UpdateUIDMap(); err != nil {
		t.Fatalf("UpdateUIDMap error: %v", err)
	}

	if got := m.lookupUID(10123); !reflect.DeepEqual(got, []string{"com.ex", "com.ex:push"}) {
		t.Errorf("lookupUID(10123) = %v", got)
	}
	if got := m.lookupUID(10200); !reflect.DeepEqual(got, []string{"com.shared"}) {
		t.Errorf("lookupUID(10200) = %v", got)
	}
	// 不在隐藏清单的包不进索引
	if got := m.lookupUID(10300); got != nil {
		t.Errorf("lookupUID(10300) = %v, want nil", got)
	}
	// 未知 uid 返回空
	if got := m.lookupUID(99999); got != nil {
		t.Errorf("lookupUID(99999) = %v, want nil", got)
	}
}

// TestUpdateUIDMapReplaces 重建必须整体替换旧表
func TestUpdateUIDMapReplaces(t *testing.T) {
	m := newTestMonitor(t, `<package name="com.ex" userId="10123" />`)
	if err := m.UpdateUIDMap(); err != nil {
		t.Fatalf("UpdateUIDMap error: %v", err)
	}
	if m.lookupUID(10123) == nil {
		t.Fatal("initial index missing entry")
	}

	// 清单重写后 uid 变化，旧映射不得残留
	if err := os.WriteFile(m.cfg.Platform.ManifestPath,
		[]byte(`<package name="com.ex" userId="10999" />`), 0600); err != nil {
		t.Fatalf("rewrite manifest: %v", err)
	}
	if err := m.UpdateUIDMap(); err != nil {
		t.Fatalf("UpdateUIDMap after rewrite error: %v", err)
	}
	if got := m.lookupUID(10123); got != nil {
		t.Errorf("stale mapping survived rebuild: %v", got)
	}
	if got := m.lookupUID(10999); !reflect.DeepEqual(got, []string{"com.ex", "com.ex:push"}) {
		t.Errorf("lookupUID(10999) = %v", got)
	}
}

// TestUpdateUIDMapMissingManifest 清单不存在时报错且索引不变
func TestUpdateUIDMapMissingManifest(t *testing.T) {
	m := newTestMonitor(t, `<package name="com.ex" userId="10123" />`)
	if err := m.UpdateUIDMap(); err != nil {
		t.Fatalf("UpdateUIDMap error: %v", err)
	}
	os.Remove(m.cfg.Platform.ManifestPath)
	if err := m.UpdateUIDMap(); err == nil {
		t.Error("UpdateUIDMap on missing manifest succeeded, want error")
	}
	if m.lookupUID(10123) == nil {
		t.Error("index was clobbered by failed rebuild")
	}
}

// TestRequestZygoteScanCoalesces 重扫请求是合并式的，不会阻塞
func TestRequestZygoteScanCoalesces(t *testing.T) {
	m := newTestMonitor(t, ``)
	for i := 0; i < 10; i++ {
		m.RequestZygoteScan()
	}
	select {
	case <-m.scanReq:
	default:
		t.Fatal("scan request channel empty after requests")
	}
	select {
	case <-m.scanReq:
		t.Error("scan requests were not coalesced")
	default:
	}
}

// TestStatsZeroValue 新监控器的统计应为零
func TestStatsZeroValue(t *testing.T) {
	m := newTestMonitor(t, ``)
	s := m.Stats()
	if s.Zygotes != 0 || s.Hidden != 0 {
		t.Errorf("Stats() = %+v, want zeros", s)
	}
}
