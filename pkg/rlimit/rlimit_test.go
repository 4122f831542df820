package rlimit

import (
	"strings"
	"syscall"
	"testing"
)

// TestPrepareRLimit 测试零值字段跳过与展开顺序无关的内容
func TestPrepareRLimit(t *testing.T) {
	r := RLimits{
		OpenFile:    65536,
		DisableCore: true,
	}
	got := r.PrepareRLimit()
	if len(got) != 2 {
		t.Fatalf("PrepareRLimit() returned %d entries, want 2", len(got))
	}

	byRes := map[int]syscall.Rlimit{}
	for _, rl := range got {
		byRes[rl.Res] = rl.Rlim
	}
	if rl, ok := byRes[syscall.RLIMIT_NOFILE]; !ok || rl.Cur != 65536 || rl.Max != 65536 {
		t.Errorf("NOFILE limit = %+v", rl)
	}
	if rl, ok := byRes[syscall.RLIMIT_CORE]; !ok || rl.Cur != 0 || rl.Max != 0 {
		t.Errorf("CORE limit = %+v", rl)
	}
}

// TestPrepareRLimitEmpty 全零配置不产生任何限制
func TestPrepareRLimitEmpty(t *testing.T) {
	r := RLimits{}
	if got := r.PrepareRLimit(); len(got) != 0 {
		t.Errorf("PrepareRLimit() on zero value = %v, want empty", got)
	}
}

// TestString 测试可读表示
func TestString(t *testing.T) {
	r := RLimits{OpenFile: 1024, DisableCore: true}
	s := r.String()
	if !strings.Contains(s, "OpenFile=1024") || !strings.Contains(s, "DisableCore=true") {
		t.Errorf("String() = %q", s)
	}

	rl := RLimit{Res: syscall.RLIMIT_NOFILE, Rlim: syscall.Rlimit{Cur: 10, Max: 20}}
	if got := rl.String(); got != "OpenFile[10:20]" {
		t.Errorf("RLimit.String() = %q", got)
	}
}
