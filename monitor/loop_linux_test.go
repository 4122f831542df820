package monitor

import (
	"testing"

	"golang.org/x/sys/unix"
)

// stopStatus 构造"因 sig 停止"的 wait 状态
func stopStatus(sig unix.Signal) unix.WaitStatus {
	return unix.WaitStatus(0x7f | int(sig)<<8)
}

// eventStatus 构造携带 ptrace 事件码的 SIGTRAP 停止状态
func eventStatus(event int) unix.WaitStatus {
	return unix.WaitStatus(0x7f | int(unix.SIGTRAP)<<8 | event<<16)
}

// exitStatus 构造正常退出的 wait 状态
func exitStatus(code int) unix.WaitStatus {
	return unix.WaitStatus(code << 8)
}

// TestClassifyStop 覆盖事件循环的全部分类分支
func TestClassifyStop(t *testing.T) {
	tests := []struct {
		name          string
		ws            unix.WaitStatus
		isZygote      bool
		detachPending bool
		want          stopKind
	}{
		{
			name: "exited process is force detached",
			ws:   exitStatus(0),
			want: stopForceDetach,
		},
		{
			name: "killed process is force detached",
			ws:   unix.WaitStatus(int(unix.SIGKILL)),
			want: stopForceDetach,
		},
		{
			name:          "pending detach consumes any stop",
			ws:            stopStatus(unix.SIGSTOP),
			detachPending: true,
			want:          stopForceDetach,
		},
		{
			name:          "pending detach outranks zygote fork",
			ws:            eventStatus(unix.PTRACE_EVENT_FORK),
			isZygote:      true,
			detachPending: true,
			want:          stopForceDetach,
		},
		{
			name:     "zygote fork",
			ws:       eventStatus(unix.PTRACE_EVENT_FORK),
			isZygote: true,
			want:     stopZygoteFork,
		},
		{
			name:     "zygote vfork",
			ws:       eventStatus(unix.PTRACE_EVENT_VFORK),
			isZygote: true,
			want:     stopZygoteFork,
		},
		{
			name:     "zygote exit",
			ws:       eventStatus(unix.PTRACE_EVENT_EXIT),
			isZygote: true,
			want:     stopZygoteGone,
		},
		{
			name:     "zygote unexpected event",
			ws:       eventStatus(unix.PTRACE_EVENT_CLONE),
			isZygote: true,
			want:     stopZygoteGone,
		},
		{
			name: "child clone",
			ws:   eventStatus(unix.PTRACE_EVENT_CLONE),
			want: stopChildClone,
		},
		{
			name: "child exec",
			ws:   eventStatus(unix.PTRACE_EVENT_EXEC),
			want: stopChildGone,
		},
		{
			name: "child exit",
			ws:   eventStatus(unix.PTRACE_EVENT_EXIT),
			want: stopChildGone,
		},
		{
			name: "child unexpected event",
			ws:   eventStatus(unix.PTRACE_EVENT_VFORK_DONE),
			want: stopChildGone,
		},
		{
			name: "child first sigstop",
			ws:   stopStatus(unix.SIGSTOP),
			want: stopChildFirst,
		},
		{
			name: "plain sigtrap without event is forwarded",
			ws:   stopStatus(unix.SIGTRAP),
			want: stopSignal,
		},
		{
			name: "unrelated signal is forwarded",
			ws:   stopStatus(unix.SIGSEGV),
			want: stopSignal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyStop(tt.ws, tt.isZygote, tt.detachPending)
			if got != tt.want {
				t.Errorf("classifyStop() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestMatchesTarget 命令行必须与清单条目精确相等
func TestMatchesTarget(t *testing.T) {
	procs := []string{"com.ex", "com.ex:push"}

	tests := []struct {
		name  string
		argv0 string
		want  bool
	}{
		{name: "exact match", argv0: "com.ex", want: true},
		{name: "exact match secondary process", argv0: "com.ex:push", want: true},
		{name: "prefix of entry", argv0: "com.e", want: false},
		{name: "entry is prefix", argv0: "com.example", want: false},
		{name: "suffix of entry", argv0: "ex", want: false},
		{name: "empty cmdline", argv0: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesTarget(procs, tt.argv0); got != tt.want {
				t.Errorf("matchesTarget(%q) = %v, want %v", tt.argv0, got, tt.want)
			}
		})
	}

	if matchesTarget(nil, "com.ex") {
		t.Error("matchesTarget with empty list matched")
	}
}
