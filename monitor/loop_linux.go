package monitor

import (
	"context"
	"fmt"
	"runtime"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// zygote 上安装的跟踪选项：关心 fork/vfork 出的新进程和 zygote 自身退出
const zygoteOptions = unix.PTRACE_O_TRACEFORK |
	unix.PTRACE_O_TRACEVFORK |
	unix.PTRACE_O_TRACEEXIT

// 子进程上安装的跟踪选项：线程创建（应用进程就绪的信号）、exec 和退出
const childOptions = unix.PTRACE_O_TRACECLONE |
	unix.PTRACE_O_TRACEEXEC |
	unix.PTRACE_O_TRACEEXIT

// stopKind 是一次 wait 状态的分类结果
type stopKind int

const (
	// stopForceDetach：不是 ptrace 停止，或该 tid 在待分离集合中
	stopForceDetach stopKind = iota
	// stopZygoteFork：zygote 宣告 fork/vfork 出新子进程
	stopZygoteFork
	// stopZygoteGone：zygote 退出或出现预期外事件，注销并分离
	stopZygoteGone
	// stopChildClone：被观察子进程创建线程，触发目标检查
	stopChildClone
	// stopChildGone：子进程 exec、退出或出现预期外事件
	stopChildGone
	// stopChildFirst：子进程 fork 后的首次 SIGSTOP
	stopChildFirst
	// stopSignal：与监控无关的信号投递，原样转发
	stopSignal
)

// classifyStop 对一次 wait 状态做纯分类。
// isZygote 表示 pid 在 zygote 注册表中；detachPending 表示
// 该 tid 此前被标记为"下一次停止即分离"。
func classifyStop(ws unix.WaitStatus, isZygote, detachPending bool) stopKind {
	if !ws.Stopped() || detachPending {
		return stopForceDetach
	}
	if ws.StopSignal() == unix.SIGTRAP && ws.TrapCause() > 0 {
		event := ws.TrapCause()
		if isZygote {
			switch event {
			case unix.PTRACE_EVENT_FORK, unix.PTRACE_EVENT_VFORK:
				return stopZygoteFork
			default:
				return stopZygoteGone
			}
		}
		switch event {
		case unix.PTRACE_EVENT_CLONE:
			return stopChildClone
		default:
			return stopChildGone
		}
	}
	if ws.StopSignal() == unix.SIGSTOP {
		return stopChildFirst
	}
	return stopSignal
}

// Run 执行监控主循环，直到 ctx 取消。
// ptrace 以线程为单位建立跟踪关系，整个生命周期必须钉在
// 同一个 OS 线程上；所有 ptrace 与 wait 调用都发生在这里。
func (m *Monitor) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	// 通知描述符建不起来时监控没有存在的意义，按致命处理
	if err := m.setupWatcher(); err != nil {
		return fmt.Errorf("monitor: inotify init: %w", err)
	}
	defer m.teardown()

	// 清单此刻可能还不存在；下一次 close-after-write 会补上
	if err := m.UpdateUIDMap(); err != nil {
		log.Debugf("monitor: initial uid map: %v", err)
	}

	go m.watch(ctx)

	// 启动时先把已有的 zygote 收进注册表
	m.scanZygotes()

	done := ctx.Done()
	for {
		select {
		case <-done:
			return nil
		case <-m.scanReq:
			m.scanZygotes()
			continue
		default:
		}

		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, waitFlags|unix.WNOHANG, nil)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.ECHILD:
			// 没有任何被跟踪进程：停泊直到命令或超时
			if !m.park(done, m.cfg.Monitor.IdleWait) {
				return nil
			}
			continue
		case err != nil:
			// 其他 wait 错误重试
			log.Debugf("monitor: wait4: %v", err)
			continue
		case pid == 0:
			// 有被跟踪进程但暂无事件
			if !m.park(done, m.cfg.Monitor.PollInterval) {
				return nil
			}
			continue
		}

		m.handleStop(pid, ws)
	}
}

// handleStop 按分类结果对一次停止做出恰好一次的 continue/detach
func (m *Monitor) handleStop(pid int, ws unix.WaitStatus) {
	_, isZygote := m.zygotes[pid]

	switch classifyStop(ws, isZygote, m.detaches.Get(pid)) {
	case stopForceDetach:
		m.release(pid, 0)

	case stopZygoteFork:
		child, err := unix.PtraceGetEventMsg(pid)
		if err != nil {
			log.Debugf("monitor: event msg pid=%d: %v", pid, err)
		} else {
			log.Debugf("monitor: zygote %d forked %d", pid, child)
			m.attaches.Set(int(child))
		}
		m.cont(pid, 0)

	case stopZygoteGone:
		log.Debugf("monitor: zygote %d gone", pid)
		m.removeZygote(pid)
		m.release(pid, 0)

	case stopChildClone:
		if !m.attaches.Get(pid) {
			m.cont(pid, 0)
			return
		}
		if !m.checkPid(pid) {
			// zygote 的嵌套孵化，不是用户应用
			m.release(pid, 0)
		}

	case stopChildGone:
		m.release(pid, 0)

	case stopChildFirst:
		if err := unix.PtraceSetOptions(pid, childOptions); err != nil {
			log.Debugf("monitor: set options pid=%d: %v", pid, err)
		}
		m.cont(pid, 0)

	case stopSignal:
		// 不是监控引起的停止，把信号原样还给进程
		m.cont(pid, int(ws.StopSignal()))
	}
}

// cont 恢复 tracee 并可携带信号
func (m *Monitor) cont(pid, sig int) {
	if err := unix.PtraceCont(pid, sig); err != nil {
		log.Debugf("monitor: cont pid=%d: %v", pid, err)
	}
}

// release 把 pid 彻底移出监控：清两个位图并以 sig 分离；sig 为 0 时不传播信号
func (m *Monitor) release(pid int, sig unix.Signal) {
	m.attaches.Clear(pid)
	m.detaches.Clear(pid)
	if err := ptraceDetach(pid, sig); err != nil {
		log.Debugf("monitor: detach pid=%d: %v", pid, err)
	}
}

// teardown 释放全部 tracee 并清空状态。
// 内核会在跟踪线程退出时自动分离，但显式逐个分离可以立刻
// 归还进程，不留到线程真正退出。
func (m *Monitor) teardown() {
	for pid := range m.zygotes {
		if err := ptraceDetach(pid, 0); err != nil {
			log.Debugf("monitor: teardown detach zygote %d: %v", pid, err)
		}
		delete(m.zygotes, pid)
	}
	m.zygoteCount.Store(0)

	m.attaches.ForEach(func(pid int) {
		_ = ptraceDetach(pid, 0)
	})
	m.detaches.ForEach(func(tid int) {
		_ = ptraceDetach(tid, 0)
	})
	m.attaches.Reset()
	m.detaches.Reset()

	m.mu.Lock()
	m.uidIndex = make(map[int][]string)
	m.mu.Unlock()

	if m.inotifyFD >= 0 {
		unix.Close(m.inotifyFD)
		m.inotifyFD = -1
	}
	log.Debug("monitor: terminated")
}
