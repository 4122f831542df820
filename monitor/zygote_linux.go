package monitor

import (
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/zqzqsb/hidemon/pkg/procfs"
)

// zygotePrefix：命令行以此开头且父进程为 init 的进程视为 zygote
const zygotePrefix = "zygote"

// scanZygotes 遍历 procfs，把尚未注册的 zygote 收进注册表。
// 新 zygote 只通过这条路径进入；目标检查碰到 zygote 嵌套孵化
// 时只会分离，不会注册。
func (m *Monitor) scanZygotes() {
	err := procfs.ForEach(func(pid int) bool {
		argv0, err := procfs.Cmdline(pid)
		if err != nil || !strings.HasPrefix(argv0, zygotePrefix) {
			return true
		}
		if ppid, err := procfs.PPID(pid); err == nil && ppid == 1 {
			m.registerZygote(pid)
		}
		return true
	})
	if err != nil {
		log.Debugf("monitor: procfs crawl: %v", err)
	}
}

// registerZygote 注册（或刷新）一个 zygote。
// 已注册的 pid 只更新命名空间标识，不重复附加；
// 注册表条目只在附加与选项安装全部成功后写入。
func (m *Monitor) registerZygote(pid int) {
	ns, err := procfs.MountNS(pid)
	if err != nil {
		return
	}

	if _, ok := m.zygotes[pid]; ok {
		// zygote 可能重新 exec 过，仅刷新命名空间
		m.zygotes[pid] = ns
		return
	}

	if err := unix.PtraceAttach(pid); err != nil {
		log.Debugf("monitor: attach zygote %d: %v", pid, err)
		return
	}

	// 等待附加产生的初始停止
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(pid, &ws, waitFlags, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil || wpid != pid {
			log.Debugf("monitor: wait zygote %d: %v", pid, err)
			_ = ptraceDetach(pid, 0)
			return
		}
		break
	}

	if err := unix.PtraceSetOptions(pid, zygoteOptions); err != nil {
		log.Debugf("monitor: zygote options %d: %v", pid, err)
		_ = ptraceDetach(pid, 0)
		return
	}
	if err := unix.PtraceCont(pid, 0); err != nil {
		log.Debugf("monitor: cont zygote %d: %v", pid, err)
		_ = ptraceDetach(pid, 0)
		return
	}

	m.zygotes[pid] = ns
	m.zygoteCount.Store(int32(len(m.zygotes)))
	log.Infof("monitor: traced zygote pid=%d", pid)
}

// removeZygote 把 zygote 移出注册表
func (m *Monitor) removeZygote(pid int) {
	delete(m.zygotes, pid)
	m.zygoteCount.Store(int32(len(m.zygotes)))
}

// sharedWithZygote 判断命名空间是否仍与某个已注册 zygote 相同。
// 相同意味着子进程还没拿到独立的挂载视图，不能隐藏。
func (m *Monitor) sharedWithZygote(ns procfs.NSID) bool {
	for _, zns := range m.zygotes {
		if zns == ns {
			return true
		}
	}
	return false
}
