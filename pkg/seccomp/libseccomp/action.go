package libseccomp

// Action 定义了 seccomp 过滤器的动作类型
// 在内部实现中，Action 是一个 32 位无符号整数：
// - 低 16 位用于基本动作（如 ALLOW、KILL 等）
// - 高 16 位用于附加数据（如错误码）
type Action uint32

// Action 定义了对系统调用的处理动作
// 这些常量从 1 开始递增（iota + 1），确保 0 值无效
const (
	ActionAllow Action = iota + 1 // 允许系统调用继续执行
	ActionErrno                   // 返回一个错误码给调用进程
	ActionTrace                   // 通知跟踪器（如 ptrace）并暂停执行
	ActionKill                    // 立即终止进程
)

// Action 方法返回基本动作类型（不包含附加数据）
// 通过位掩码 0xffff 提取低 16 位的基本动作值
func (a Action) Action() Action {
	return Action(a & 0xffff)
}
