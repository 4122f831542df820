package libseccomp

import (
	libseccomp "github.com/elastic/go-seccomp-bpf"
)

// ToSeccompAction 将我们的 Action 类型转换为 libseccomp 库支持的动作类型
//
// 转换对应关系：
//   - ActionAllow -> libseccomp.ActionAllow（允许系统调用）
//   - ActionErrno -> libseccomp.ActionErrno（返回 EPERM）
//   - ActionTrace -> libseccomp.ActionTrace（通知 tracer）
//   - 其他        -> libseccomp.ActionKillProcess（终止进程）
func ToSeccompAction(a Action) libseccomp.Action {
	var action libseccomp.Action
	switch a.Action() {
	case ActionAllow:
		action = libseccomp.ActionAllow
	case ActionErrno:
		action = libseccomp.ActionErrno
	case ActionTrace:
		action = libseccomp.ActionTrace
	default:
		action = libseccomp.ActionKillProcess
	}

	// 注意：SECCOMP_RET_DATA 存储在返回值的低 16 位
	// 这部分功能目前在 go-seccomp-bpf 库中并未正式支持
	return action
}
