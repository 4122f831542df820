package monitor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"unsafe"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// watchPollTimeout 是通知轮询的毫秒超时，顺带充当 ctx 检查周期
const watchPollTimeout = 500

// setupWatcher 创建通知描述符并挂上两类监视：
// 清单目录的 close-after-write（触发 uid 索引重建）、
// 应用加载器二进制的 access（触发 zygote 重扫）。
func (m *Monitor) setupWatcher() error {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC)
	if err != nil {
		return err
	}

	dir := filepath.Dir(m.cfg.Platform.ManifestPath)
	if _, err := unix.InotifyAddWatch(fd, dir, unix.IN_CLOSE_WRITE); err != nil {
		log.Debugf("monitor: watch %s: %v", dir, err)
	}

	// 同时存在 32/64 位加载器时两个都要盯
	ap := m.cfg.Platform.AppProcess
	if _, err := os.Stat(ap + "32"); err == nil {
		if _, err := unix.InotifyAddWatch(fd, ap+"32", unix.IN_ACCESS); err != nil {
			log.Debugf("monitor: watch %s32: %v", ap, err)
		}
		if _, err := os.Stat(ap + "64"); err == nil {
			if _, err := unix.InotifyAddWatch(fd, ap+"64", unix.IN_ACCESS); err != nil {
				log.Debugf("monitor: watch %s64: %v", ap, err)
			}
		}
	} else {
		if _, err := unix.InotifyAddWatch(fd, ap, unix.IN_ACCESS); err != nil {
			log.Debugf("monitor: watch %s: %v", ap, err)
		}
	}

	m.inotifyFD = fd
	return nil
}

// watch 在独立 goroutine 中消费通知事件。
// 先 poll 再读，虚假唤醒（poll 超时或无 POLLIN）直接跳过，
// 绝不在描述符上盲目阻塞。
func (m *Monitor) watch(ctx context.Context) {
	fds := []unix.PollFd{{Fd: int32(m.inotifyFD), Events: unix.POLLIN}}
	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := unix.Poll(fds, watchPollTimeout)
		if err == unix.EINTR || n == 0 {
			continue
		}
		if err != nil {
			log.Debugf("monitor: watcher poll: %v", err)
			return
		}
		if fds[0].Revents&unix.POLLIN == 0 {
			continue
		}
		rn, err := unix.Read(m.inotifyFD, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil || rn <= 0 {
			// 描述符在拆除时被关闭
			return
		}
		m.handleNotify(buf[:rn])
	}
}

// handleNotify 解析一批 inotify 事件。
// 清单写完即重建索引；每批事件之后都重扫 zygote，
// 保证新 zygote 被尽早发现。
func (m *Monitor) handleNotify(buf []byte) {
	manifest := filepath.Base(m.cfg.Platform.ManifestPath)
	for off := 0; off+unix.SizeofInotifyEvent <= len(buf); {
		ev := (*unix.InotifyEvent)(unsafe.Pointer(&buf[off]))
		end := off + unix.SizeofInotifyEvent + int(ev.Len)
		if end > len(buf) {
			break
		}
		name := ""
		if ev.Len > 0 {
			name = string(bytes.TrimRight(buf[off+unix.SizeofInotifyEvent:end], "\x00"))
		}
		if ev.Mask&unix.IN_CLOSE_WRITE != 0 && name == manifest {
			if err := m.UpdateUIDMap(); err != nil {
				log.Debugf("monitor: uid map rebuild: %v", err)
			} else {
				log.Debug("monitor: uid map rebuilt")
			}
		}
		off = end
	}
	m.RequestZygoteScan()
}
