package monitor

import (
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/zqzqsb/hidemon/pkg/pipe"
	"github.com/zqzqsb/hidemon/pkg/procfs"
)

// hideOutputLimit 限制隐藏助手输出的采集量
const hideOutputLimit = 16 << 10

// checkPid 对刚产生 clone 事件的 pid 做目标判定。
// 返回 true 表示本函数已完成该 pid 的分离，调用方不得再
// continue/detach；返回 false 表示这是 zygote 的嵌套孵化，
// 由调用方分离。
func (m *Monitor) checkPid(pid int) bool {
	argv0, err := procfs.Cmdline(pid)
	if err != nil {
		// 进程意外消失
		m.release(pid, 0)
		return true
	}
	if strings.HasPrefix(argv0, zygotePrefix) {
		return false
	}

	uid, err := procfs.OwnerUID(pid)
	if err != nil {
		m.release(pid, 0)
		return true
	}
	uid %= platformUIDBase

	if !matchesTarget(m.lookupUID(uid), argv0) {
		m.detachTree(pid, 0)
		return true
	}

	ns, err := procfs.MountNS(pid)
	if err != nil {
		m.release(pid, 0)
		return true
	}
	if m.sharedWithZygote(ns) {
		// 命名空间尚未隔离，放弃本次；不重试
		log.Debugf("monitor: [%s] pid=%d ns still shared, abort", argv0, pid)
		m.detachTree(pid, 0)
		return true
	}

	// 确认目标：携带 SIGSTOP 分离，进程保持冻结，由隐藏助手恢复
	log.Infof("monitor: [%s] pid=%d uid=%d", argv0, pid, uid)
	m.detachTree(pid, unix.SIGSTOP)
	m.hiddenCount.Add(1)
	// 另起 goroutine 生成助手，避免子进程挂在跟踪线程名下
	// 被主循环的 wait 抢先回收
	go m.spawnHide(pid)
	return true
}

// matchesTarget 要求命令行与清单条目精确相等；前缀或后缀都不算
func matchesTarget(procs []string, argv0 string) bool {
	for _, p := range procs {
		if p == argv0 {
			return true
		}
	}
	return false
}

// detachTree 分离 pid 及其全部兄弟线程。
// 已处于停止状态的线程当场分离；其余线程用 tgkill 送 SIGSTOP
// 逼入停止，并登记到待分离集合，由主循环消费后分离。
func (m *Monitor) detachTree(pid int, sig unix.Signal) {
	m.attaches.Clear(pid)
	if err := ptraceDetach(pid, sig); err != nil {
		log.Debugf("monitor: detach pid=%d: %v", pid, err)
	}

	tids, err := procfs.Threads(pid)
	if err != nil {
		return
	}
	for _, tid := range tids {
		if tid == pid {
			continue
		}
		var ws unix.WaitStatus
		if wpid, err := unix.Wait4(tid, &ws, waitFlags|unix.WNOHANG, nil); err == nil && wpid == tid {
			// 已经停着，直接分离
			if err := ptraceDetach(tid, 0); err != nil {
				log.Debugf("monitor: detach tid=%d: %v", tid, err)
			}
			continue
		}
		m.detaches.Set(tid)
		if err := unix.Tgkill(pid, tid, unix.SIGSTOP); err != nil {
			// 线程可能刚退出；停止事件不会来了，收回标记
			m.detaches.Clear(tid)
		}
	}
}

// defaultSpawnHide 以分离的子进程启动隐藏助手。
// 未配置外部助手时自执行 "hide <pid>" 子命令。
// 助手的合并输出经有界管道采集，仅用于调试日志。
func (m *Monitor) defaultSpawnHide(pid int) {
	arg := strconv.Itoa(pid)
	var cmd *exec.Cmd
	if helper := m.cfg.Hide.Helper; helper != "" {
		cmd = exec.Command(helper, arg)
	} else {
		exe, err := os.Executable()
		if err != nil {
			log.Errorf("monitor: resolve self executable: %v", err)
			return
		}
		args := []string{"hide", arg}
		if m.cfg.SourcePath != "" {
			args = append([]string{"--config", m.cfg.SourcePath}, args...)
		}
		cmd = exec.Command(exe, args...)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	out, err := pipe.NewBuffer(hideOutputLimit)
	if err == nil {
		cmd.Stdout = out.W
		cmd.Stderr = out.W
	}

	if err := cmd.Start(); err != nil {
		log.Errorf("monitor: spawn hide helper for pid=%d: %v", pid, err)
		return
	}
	if out != nil {
		// 写端已由子进程持有，关闭父进程的副本
		out.W.Close()
	}

	if err := cmd.Wait(); err != nil {
		log.Debugf("monitor: hide helper pid=%d: %v", pid, err)
	}
	if out != nil {
		<-out.Done
		if s := strings.TrimSpace(out.Buffer.String()); s != "" {
			log.Debugf("monitor: hide helper output: %s", s)
		}
	}
}
