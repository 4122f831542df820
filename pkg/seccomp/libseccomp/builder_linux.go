package libseccomp

import (
	"syscall"

	libseccomp "github.com/elastic/go-seccomp-bpf"
	"golang.org/x/net/bpf"

	"github.com/zqzqsb/hidemon/pkg/seccomp"
)

// Builder 用于构建 seccomp 过滤器
// 守护进程的自加固采用黑名单形态：Default 放行，
// Errno 列表中的系统调用返回错误
type Builder struct {
	Allow   []string // 显式允许的系统调用列表
	Errno   []string // 返回 EPERM 的系统调用列表
	Default Action   // 默认动作（系统调用不在上述列表中时）
}

// Build 构建过滤器
// 将 Builder 中的配置转换为可装载的 BPF 过滤器
//
// 过程：
// 1. 创建过滤策略
// 2. 编译为 BPF 程序
// 3. 转换为内核可读格式
func (b *Builder) Build() (seccomp.Filter, error) {
	// 列表中重复的系统调用只保留一次，底层库不接受重名
	dedup := func(names []string) []string {
		seen := make(map[string]bool, len(names))
		out := make([]string, 0, len(names))
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
		return out
	}

	policy := libseccomp.Policy{
		DefaultAction: ToSeccompAction(b.Default),
		Syscalls: []libseccomp.SyscallGroup{
			{
				Action: libseccomp.ActionAllow,
				Names:  dedup(b.Allow),
			},
			{
				Action: libseccomp.ActionErrno,
				Names:  dedup(b.Errno),
			},
		},
	}

	program, err := policy.Assemble()
	if err != nil {
		return nil, err
	}

	return ExportBPF(program)
}

// ExportBPF 将 libseccomp 过滤器转换为内核可读的 BPF 内容
func ExportBPF(filter []bpf.Instruction) (seccomp.Filter, error) {
	raw, err := bpf.Assemble(filter)
	if err != nil {
		return nil, err
	}
	return sockFilter(raw), nil
}

// sockFilter 将原始 BPF 指令转换为内核使用的 SockFilter 格式
func sockFilter(raw []bpf.RawInstruction) []syscall.SockFilter {
	filter := make([]syscall.SockFilter, 0, len(raw))
	for _, instruction := range raw {
		filter = append(filter, syscall.SockFilter{
			Code: instruction.Op,
			Jt:   instruction.Jt,
			Jf:   instruction.Jf,
			K:    instruction.K,
		})
	}
	return filter
}
