package mount

import (
	"strings"
	"syscall"
	"testing"
)

const sampleMounts = `/dev/block/dm-0 / ext4 ro,seclabel,relatime 0 0
tmpfs /dev tmpfs rw,seclabel,nosuid,relatime,size=1024k 0 0
/sbin/.magisk/block/system /sbin/.magisk/mirror/system ext4 rw,seclabel 0 0
magisk /system/bin/su tmpfs rw,seclabel 0 0
tmpfs /mnt/path\040with\040space tmpfs rw 0 0
broken line
`

// TestParseTable 测试挂载表解析与八进制转义还原
func TestParseTable(t *testing.T) {
	table, err := ParseTable(strings.NewReader(sampleMounts))
	if err != nil {
		t.Fatalf("ParseTable error: %v", err)
	}
	if len(table) != 5 {
		t.Fatalf("ParseTable returned %d entries, want 5", len(table))
	}
	if table[0].Target != "/" || table[0].FsType != "ext4" {
		t.Errorf("first entry = %+v", table[0])
	}
	if table[3].Source != "magisk" || table[3].Target != "/system/bin/su" {
		t.Errorf("magisk entry = %+v", table[3])
	}
	if table[4].Target != "/mnt/path with space" {
		t.Errorf("escaped target = %q", table[4].Target)
	}
}

// TestUnescapeOctal 测试转义还原的边界情况
func TestUnescapeOctal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "no escape", in: "/plain/path", want: "/plain/path"},
		{name: "space", in: "/a\\040b", want: "/a b"},
		{name: "tab", in: "/a\\011b", want: "/a\tb"},
		{name: "trailing backslash", in: "/a\\", want: "/a\\"},
		{name: "invalid digits", in: "/a\\9zzb", want: "/a\\9zzb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := unescapeOctal(tt.in); got != tt.want {
				t.Errorf("unescapeOctal(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestMountPredicates 测试标志位判断
func TestMountPredicates(t *testing.T) {
	bindRo := Mount{Source: "/a", Target: "/b", Flags: syscall.MS_BIND | syscall.MS_RDONLY}
	if !bindRo.IsBindMount() || !bindRo.IsReadOnly() {
		t.Errorf("bind-ro predicates wrong: %v", bindRo)
	}
	tmp := Mount{Target: "/t", FsType: "tmpfs"}
	if !tmp.IsTmpFs() || tmp.IsBindMount() {
		t.Errorf("tmpfs predicates wrong: %v", tmp)
	}
}
