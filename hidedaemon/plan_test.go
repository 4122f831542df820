package hidedaemon

import (
	"testing"

	"github.com/zqzqsb/hidemon/pkg/mount"
)

func sampleTable() []mount.Mount {
	return []mount.Mount{
		{Source: "/dev/block/dm-0", Target: "/", FsType: "ext4"},
		{Source: "magisk", Target: "/system/bin/su", FsType: "tmpfs"},
		{Source: "/sbin/.magisk/block/system", Target: "/sbin/.magisk/mirror/system", FsType: "ext4"},
		{Source: "tmpfs", Target: "/sbin/.magisk", FsType: "tmpfs"},
		{Source: "tmpfs", Target: "/dev", FsType: "tmpfs"},
		{Source: "proc", Target: "/proc", FsType: "proc"},
	}
}

// TestBuildPlan 测试筛选条件与卸载顺序
func TestBuildPlan(t *testing.T) {
	plan := BuildPlan(sampleTable(), "magisk", []string{"/sbin/.magisk"})

	if len(plan) != 3 {
		t.Fatalf("BuildPlan returned %d entries, want 3: %v", len(plan), plan)
	}
	// 深路径优先：mirror/system 必须先于 /sbin/.magisk 本体
	if plan[0].Target != "/sbin/.magisk/mirror/system" {
		t.Errorf("plan[0].Target = %q, want deepest first", plan[0].Target)
	}
	if plan[len(plan)-1].Target != "/sbin/.magisk" {
		t.Errorf("plan[last].Target = %q, want parent mount last", plan[len(plan)-1].Target)
	}
	// 根挂载、/dev、/proc 不得入选
	for _, m := range plan {
		switch m.Target {
		case "/", "/dev", "/proc":
			t.Errorf("unrelated mount %q selected", m.Target)
		}
	}
}

// TestBuildPlanKeywordOnly 仅按来源关键字筛选
func TestBuildPlanKeywordOnly(t *testing.T) {
	plan := BuildPlan(sampleTable(), "magisk", nil)
	if len(plan) != 2 {
		t.Fatalf("BuildPlan returned %d entries, want 2: %v", len(plan), plan)
	}
	for _, m := range plan {
		if m.Target == "/sbin/.magisk" {
			t.Error("prefix-only entry selected without prefixes")
		}
	}
}

// TestBuildPlanPrefixBoundary 前缀必须按路径分量匹配
func TestBuildPlanPrefixBoundary(t *testing.T) {
	table := []mount.Mount{
		{Source: "tmpfs", Target: "/data/adb", FsType: "tmpfs"},
		{Source: "tmpfs", Target: "/data/adbx", FsType: "tmpfs"},
		{Source: "tmpfs", Target: "/data/adb/modules", FsType: "tmpfs"},
	}
	plan := BuildPlan(table, "", []string{"/data/adb"})
	if len(plan) != 2 {
		t.Fatalf("BuildPlan returned %d entries, want 2: %v", len(plan), plan)
	}
	for _, m := range plan {
		if m.Target == "/data/adbx" {
			t.Error("sibling path /data/adbx matched the /data/adb prefix")
		}
	}
}

// TestBuildPlanEmpty 无条件时不选任何挂载点
func TestBuildPlanEmpty(t *testing.T) {
	if plan := BuildPlan(sampleTable(), "", nil); len(plan) != 0 {
		t.Errorf("BuildPlan with no filters = %v, want empty", plan)
	}
}
