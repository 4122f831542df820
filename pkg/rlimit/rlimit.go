// Package rlimit 提供了通过 setrlimit 系统调用设置 Linux 资源限制的数据结构。
// 守护进程在启动时用它约束自身：抬高文件描述符上限以容纳
// 大量 /proc 读取与通知描述符，并关闭 core dump 避免留下痕迹。
package rlimit

import (
	"fmt"
	"strings"
	"syscall"
)

// RLimits 定义了要应用的资源限制，零值字段跳过
type RLimits struct {
	FileSize     uint64 // 文件大小限制（字节）
	Stack        uint64 // 栈大小限制（字节）
	AddressSpace uint64 // 地址空间限制（字节）
	OpenFile     uint64 // 打开文件数量限制
	DisableCore  bool   // 是否禁用 core dump
}

// RLimit 是 Linux setrlimit 定义的资源限制
type RLimit struct {
	// Res 是资源类型（例如 syscall.RLIMIT_NOFILE）
	Res int
	// Rlim 是应用到该资源的限制
	Rlim syscall.Rlimit
}

// getRlimit 创建一个新的 Rlimit 结构体
func getRlimit(cur, max uint64) syscall.Rlimit {
	return syscall.Rlimit{Cur: cur, Max: max}
}

// PrepareRLimit 展开为逐项的 setrlimit 参数
func (r *RLimits) PrepareRLimit() []RLimit {
	var ret []RLimit

	// 文件大小限制
	if r.FileSize > 0 {
		ret = append(ret, RLimit{
			Res:  syscall.RLIMIT_FSIZE,
			Rlim: getRlimit(r.FileSize, r.FileSize),
		})
	}

	// 栈大小限制
	if r.Stack > 0 {
		ret = append(ret, RLimit{
			Res:  syscall.RLIMIT_STACK,
			Rlim: getRlimit(r.Stack, r.Stack),
		})
	}

	// 地址空间限制
	if r.AddressSpace > 0 {
		ret = append(ret, RLimit{
			Res:  syscall.RLIMIT_AS,
			Rlim: getRlimit(r.AddressSpace, r.AddressSpace),
		})
	}

	// 打开文件数量限制
	if r.OpenFile > 0 {
		ret = append(ret, RLimit{
			Res:  syscall.RLIMIT_NOFILE,
			Rlim: getRlimit(r.OpenFile, r.OpenFile),
		})
	}

	// 禁用 core dump
	if r.DisableCore {
		ret = append(ret, RLimit{
			Res:  syscall.RLIMIT_CORE,
			Rlim: getRlimit(0, 0),
		})
	}

	return ret
}

// Apply 把全部限制应用到当前进程
func (r *RLimits) Apply() error {
	for _, rl := range r.PrepareRLimit() {
		rlim := rl.Rlim
		if err := syscall.Setrlimit(rl.Res, &rlim); err != nil {
			return fmt.Errorf("setrlimit %s: %w", rl.String(), err)
		}
	}
	return nil
}

// String 返回 RLimit 的字符串表示
func (r RLimit) String() string {
	var t string
	switch r.Res {
	case syscall.RLIMIT_NOFILE:
		return fmt.Sprintf("OpenFile[%d:%d]", r.Rlim.Cur, r.Rlim.Max)
	case syscall.RLIMIT_FSIZE:
		t = "File"
	case syscall.RLIMIT_STACK:
		t = "Stack"
	case syscall.RLIMIT_AS:
		t = "AddressSpace"
	case syscall.RLIMIT_CORE:
		t = "Core"
	default:
		t = fmt.Sprintf("Resource(%d)", r.Res)
	}
	return fmt.Sprintf("%s[%d]", t, r.Rlim.Cur)
}

// String 返回 RLimits 的字符串表示
func (r *RLimits) String() string {
	var s []string
	if r.FileSize > 0 {
		s = append(s, fmt.Sprintf("FileSize=%d", r.FileSize))
	}
	if r.Stack > 0 {
		s = append(s, fmt.Sprintf("Stack=%d", r.Stack))
	}
	if r.AddressSpace > 0 {
		s = append(s, fmt.Sprintf("AddressSpace=%d", r.AddressSpace))
	}
	if r.OpenFile > 0 {
		s = append(s, fmt.Sprintf("OpenFile=%d", r.OpenFile))
	}
	if r.DisableCore {
		s = append(s, "DisableCore=true")
	}
	return fmt.Sprintf("RLimits{%s}", strings.Join(s, ", "))
}
