// Package pidset 提供以 PID 为索引的定宽位图。
// 监控器用它记录"已附加待观察"的进程和"等待消费停止后分离"的线程，
// 容量取自内核配置的 PID 上限，保证任何合法 PID 都可表示。
package pidset

import "math/bits"

// Set 是一个覆盖 [0, max] 的位图。
// 越界的 PID 视为不在集合中，Set/Clear 对其为空操作，
// 这样内核在运行期间调大 pid_max 也不会触发越界访问。
type Set struct {
	bits []uint64
	max  int
}

// New 创建容量为 [0, max] 的位图
func New(max int) *Set {
	if max < 0 {
		max = 0
	}
	return &Set{
		bits: make([]uint64, max/64+1),
		max:  max,
	}
}

// Max 返回该位图可表示的最大 PID
func (s *Set) Max() int {
	return s.max
}

// Get 返回 pid 是否在集合中
func (s *Set) Get(pid int) bool {
	if pid < 0 || pid > s.max {
		return false
	}
	return s.bits[pid/64]&(1<<(uint(pid)%64)) != 0
}

// Set 将 pid 加入集合
func (s *Set) Set(pid int) {
	if pid < 0 || pid > s.max {
		return
	}
	s.bits[pid/64] |= 1 << (uint(pid) % 64)
}

// Clear 将 pid 移出集合
func (s *Set) Clear(pid int) {
	if pid < 0 || pid > s.max {
		return
	}
	s.bits[pid/64] &^= 1 << (uint(pid) % 64)
}

// Reset 清空整个集合
func (s *Set) Reset() {
	for i := range s.bits {
		s.bits[i] = 0
	}
}

// Count 返回集合中的 PID 数量
func (s *Set) Count() int {
	n := 0
	for _, w := range s.bits {
		for ; w != 0; w &= w - 1 {
			n++
		}
	}
	return n
}

// ForEach 按升序遍历集合中的每个 PID
func (s *Set) ForEach(fn func(pid int)) {
	for i, w := range s.bits {
		for w != 0 {
			pid := i*64 + bits.TrailingZeros64(w)
			if pid <= s.max {
				fn(pid)
			}
			w &= w - 1
		}
	}
}
