package pidset

import "testing"

// TestSetGetClear 测试基本的置位、查询和清除
func TestSetGetClear(t *testing.T) {
	tests := []struct {
		name string
		max  int
		pid  int
	}{
		{name: "small pid", max: 32768, pid: 1},
		{name: "word boundary", max: 32768, pid: 64},
		{name: "word boundary minus one", max: 32768, pid: 63},
		{name: "max pid", max: 32768, pid: 32768},
		{name: "large pid_max", max: 4194304, pid: 4194304},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.max)
			if s.Get(tt.pid) {
				t.Errorf("Get(%d) = true before Set", tt.pid)
			}
			s.Set(tt.pid)
			if !s.Get(tt.pid) {
				t.Errorf("Get(%d) = false after Set", tt.pid)
			}
			s.Clear(tt.pid)
			if s.Get(tt.pid) {
				t.Errorf("Get(%d) = true after Clear", tt.pid)
			}
		})
	}
}

// TestOutOfRange 测试越界 PID 的容错行为
func TestOutOfRange(t *testing.T) {
	s := New(32768)
	// 越界操作不应 panic，查询应返回 false
	s.Set(32769)
	s.Set(-1)
	if s.Get(32769) || s.Get(-1) {
		t.Error("out-of-range pid reported as set")
	}
	s.Clear(32769)
	s.Clear(-1)
}

// TestResetCount 测试整体清空和计数
func TestResetCount(t *testing.T) {
	s := New(32768)
	for _, pid := range []int{0, 1, 100, 4096, 32768} {
		s.Set(pid)
	}
	if got := s.Count(); got != 5 {
		t.Errorf("Count() = %d, want 5", got)
	}
	// 重复置位不应改变计数
	s.Set(100)
	if got := s.Count(); got != 5 {
		t.Errorf("Count() after duplicate Set = %d, want 5", got)
	}
	s.Reset()
	if got := s.Count(); got != 0 {
		t.Errorf("Count() after Reset = %d, want 0", got)
	}
	if s.Get(4096) {
		t.Error("Get(4096) = true after Reset")
	}
}

// TestForEach 测试按升序遍历
func TestForEach(t *testing.T) {
	s := New(32768)
	want := []int{0, 63, 64, 1000, 32768}
	for _, pid := range want {
		s.Set(pid)
	}
	var got []int
	s.ForEach(func(pid int) { got = append(got, pid) })
	if len(got) != len(want) {
		t.Fatalf("ForEach visited %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ForEach visited %v, want %v", got, want)
		}
	}
}
