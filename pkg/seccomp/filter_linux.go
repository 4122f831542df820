// Package seccomp 提供了 seccomp 过滤器的生成与自装载功能。
// seccomp (secure computing mode) 是 Linux 内核提供的安全机制，
// 用于限制进程可以使用的系统调用。
package seccomp

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Filter 是 BPF (Berkeley Packet Filter) 格式的 seccomp 过滤器。
// 每个 SockFilter 结构体表示一条 BPF 指令，包含：
// - Code: 操作码，定义指令的行为（加载、存储、跳转等）
// - Jt/Jf: 条件跳转的目标（true/false）
// - K: 立即数值或内存地址
type Filter []syscall.SockFilter

// SockFprog 将 Filter 转换为内核可以理解的 SockFprog 格式。
// 注意：Filter 指针必须指向连续的内存区域，因此需要获取
// 切片底层数组的指针。
func (f Filter) SockFprog() *syscall.SockFprog {
	b := []syscall.SockFilter(f)
	return &syscall.SockFprog{
		Len:    uint16(len(b)),
		Filter: &b[0],
	}
}

// Install 把过滤器装载到当前进程。
// 使用 seccomp(2) 的 TSYNC 标志，过滤器会同步到运行时已经
// 创建的所有线程；装载后不可卸除，对 fork/exec 出的子进程
// 同样生效。
func (f Filter) Install() error {
	// 没有 NO_NEW_PRIVS 时非特权装载会被内核拒绝；对 root 无害
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return err
	}
	prog := f.SockFprog()
	_, _, errno := unix.Syscall(unix.SYS_SECCOMP,
		unix.SECCOMP_SET_MODE_FILTER,
		unix.SECCOMP_FILTER_FLAG_TSYNC,
		uintptr(unsafe.Pointer(prog)))
	if errno != 0 {
		return errno
	}
	return nil
}
