package hidedaemon

import (
	"fmt"
	"os"
	"runtime"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/zqzqsb/hidemon/config"
	"github.com/zqzqsb/hidemon/pkg/mount"
)

// Run 对一个处于冻结状态的目标执行隐藏。
// 约定：调用时目标必须停在 SIGSTOP；无论隐藏成败，
// 本函数负责用 SIGCONT 恢复它。
func Run(pid int, cfg *config.HideConfig) error {
	// 先恢复目标再返回：目标永远不能因为隐藏失败而一直冻着
	defer func() {
		if err := unix.Kill(pid, unix.SIGCONT); err != nil {
			log.Errorf("hide: resume pid=%d: %v", pid, err)
		}
	}()

	if err := enterMountNS(pid); err != nil {
		return fmt.Errorf("hide: enter mnt ns of %d: %w", pid, err)
	}

	// setns 只切换了本线程；本线程的 mounts 反映的就是目标的挂载视图
	f, err := os.Open(fmt.Sprintf("/proc/self/task/%d/mounts", unix.Gettid()))
	if err != nil {
		return fmt.Errorf("hide: open mounts: %w", err)
	}
	table, err := mount.ParseTable(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("hide: parse mounts: %w", err)
	}

	plan := BuildPlan(table, cfg.SourceKeyword, cfg.UnmountPrefixes)
	removed := 0
	for _, m := range plan {
		if err := m.Unmount(); err != nil {
			// 单点失败不中止：能摘多少摘多少
			log.Debugf("hide: %v", err)
		} else {
			removed++
			log.Debugf("hide: unmounted %s", m.Target)
		}
	}
	log.Infof("hide: pid=%d, %d mounts removed", pid, removed)

	// 卸载后仍残留的目录用空 tmpfs 覆盖
	for _, p := range cfg.MaskPaths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		msk := mount.Mount{
			Source: "tmpfs",
			Target: p,
			FsType: "tmpfs",
			Flags:  unix.MS_NOSUID | unix.MS_NODEV | unix.MS_NOATIME,
		}
		if err := msk.Mount(); err != nil {
			log.Debugf("hide: mask %s: %v", p, err)
		}
	}
	return nil
}

// enterMountNS 把当前线程切入 pid 的挂载命名空间。
// Go 运行时的线程共享 fs 属性，直接 setns 会被内核拒绝；
// 先把本线程钉住并 unshare(CLONE_FS) 解除共享。
// 线程此后不再归还调度器，进程随命令退出。
func enterMountNS(pid int) error {
	runtime.LockOSThread()

	if err := unix.Unshare(unix.CLONE_FS); err != nil {
		return fmt.Errorf("unshare fs: %w", err)
	}

	fd, err := unix.Open(fmt.Sprintf("/proc/%d/ns/mnt", pid), unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open ns: %w", err)
	}
	defer unix.Close(fd)

	if err := unix.Setns(fd, unix.CLONE_NEWNS); err != nil {
		return fmt.Errorf("setns: %w", err)
	}
	return nil
}
