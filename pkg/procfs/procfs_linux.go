// Package procfs 封装了监控器依赖的 /proc 读取操作。
// 所有函数都把"进程已消失"视为普通错误返回，由调用方决定是否忽略。
package procfs

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// DefaultPIDMax 是读取内核配置失败时的兜底值
const DefaultPIDMax = 32768

// NSID 唯一标识运行内核上的一个命名空间。
// 两个进程的 /proc/<pid>/ns/mnt 若 (Dev, Ino) 相等则共享同一挂载表。
type NSID struct {
	Dev uint64
	Ino uint64
}

// Cmdline 读取 /proc/<pid>/cmdline 的第一个参数（argv[0]）。
// cmdline 以 NUL 分隔，目标匹配只关心进程名本身。
func Cmdline(pid int) (string, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
	if err != nil {
		return "", err
	}
	return firstField(data), nil
}

// firstField 返回首个 NUL 之前的内容
func firstField(data []byte) string {
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}

// PPID 从 /proc/<pid>/stat 解析父进程 PID
func PPID(pid int) (int, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, err
	}
	return parseStatPPID(data)
}

// parseStatPPID 解析 stat 内容：PID (COMM) STATE PPID ...
// COMM 可能包含空格和括号，必须从最后一个 ')' 之后开始切分
func parseStatPPID(data []byte) (int, error) {
	end := -1
	for i := len(data) - 1; i >= 0; i-- {
		if data[i] == ')' {
			end = i
			break
		}
	}
	if end < 0 || end+1 >= len(data) {
		return 0, fmt.Errorf("procfs: malformed stat content")
	}
	// ')' 之后依次是 STATE PPID ...
	fields := strings.Fields(string(data[end+1:]))
	if len(fields) < 2 {
		return 0, fmt.Errorf("procfs: malformed stat content")
	}
	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, fmt.Errorf("procfs: parse stat ppid: %w", err)
	}
	return ppid, nil
}

// OwnerUID 通过 lstat /proc/<pid> 读取进程属主 uid
func OwnerUID(pid int) (int, error) {
	var st unix.Stat_t
	if err := unix.Lstat(fmt.Sprintf("/proc/%d", pid), &st); err != nil {
		return 0, err
	}
	return int(st.Uid), nil
}

// MountNS 读取 /proc/<pid>/ns/mnt 的命名空间标识
func MountNS(pid int) (NSID, error) {
	var st unix.Stat_t
	if err := unix.Stat(fmt.Sprintf("/proc/%d/ns/mnt", pid), &st); err != nil {
		return NSID{}, err
	}
	return NSID{Dev: uint64(st.Dev), Ino: st.Ino}, nil
}

// Threads 列出线程组 pid 的所有线程 ID（/proc/<pid>/task）
func Threads(pid int) ([]int, error) {
	entries, err := os.ReadDir(fmt.Sprintf("/proc/%d/task", pid))
	if err != nil {
		return nil, err
	}
	tids := make([]int, 0, len(entries))
	for _, e := range entries {
		tid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		tids = append(tids, tid)
	}
	return tids, nil
}

// ForEach 遍历 /proc 下的所有数字目录项，对每个 PID 调用 fn。
// fn 返回 false 时提前终止遍历。
func ForEach(fn func(pid int) bool) error {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return err
	}
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		if !fn(pid) {
			break
		}
	}
	return nil
}

// PIDMax 读取内核配置的 PID 上限。
// 位图必须按运行内核的实际上限分配，写死小值会造成越界索引。
func PIDMax() int {
	data, err := os.ReadFile("/proc/sys/kernel/pid_max")
	if err != nil {
		return DefaultPIDMax
	}
	return parsePIDMax(data)
}

func parsePIDMax(data []byte) int {
	s := string(data)
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == ' ') {
		s = s[:len(s)-1]
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return DefaultPIDMax
	}
	return n
}
