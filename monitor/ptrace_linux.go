package monitor

import (
	"golang.org/x/sys/unix"
)

// waitFlags：等待所有子进程，且只等待本线程的 tracee
const waitFlags = unix.WALL | unix.WNOTHREAD

// ptraceDetach 带信号地分离 tracee。
// x/sys 的 PtraceDetach 不暴露 data 参数，目标分离时需要
// 携带 SIGSTOP 让进程保持冻结，这里直接走原始系统调用。
func ptraceDetach(pid int, sig unix.Signal) error {
	return ptraceRaw(unix.PTRACE_DETACH, pid, 0, uintptr(sig))
}

func ptraceRaw(req, pid int, addr, data uintptr) error {
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE,
		uintptr(req), uintptr(pid), addr, data, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}
