// Package control 实现监督接口：一条仅限 root 的本地控制套接字，
// 暴露 uid 索引重载、zygote 重扫、运行状态与清单库编辑。
package control

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/zqzqsb/hidemon/hidelist"
	"github.com/zqzqsb/hidemon/monitor"
	"github.com/zqzqsb/hidemon/pkg/unixsocket"
)

// MonitorAPI 是控制面需要的监控器能力
type MonitorAPI interface {
	UpdateUIDMap() error
	RequestZygoteScan()
	Stats() monitor.Stats
}

// ListStore 是控制面需要的清单库能力
type ListStore interface {
	Load() ([]hidelist.Entry, error)
	Add(hidelist.Entry) error
	Remove(hidelist.Entry) error
}

// dispatch 执行一条控制命令并返回应答文本。
// 应答以 "OK" 或 "ERR" 开头，后接可选说明。
func dispatch(cmd string, mon MonitorAPI, store ListStore) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return "ERR empty command"
	}

	switch fields[0] {
	case "status":
		st := mon.Stats()
		return fmt.Sprintf("OK zygotes=%d hidden=%d", st.Zygotes, st.Hidden)

	case "reload":
		if err := mon.UpdateUIDMap(); err != nil {
			return fmt.Sprintf("ERR %v", err)
		}
		return "OK"

	case "scan":
		mon.RequestZygoteScan()
		return "OK"

	case "ls":
		entries, err := store.Load()
		if err != nil {
			return fmt.Sprintf("ERR %v", err)
		}
		var b strings.Builder
		b.WriteString("OK")
		for _, e := range entries {
			fmt.Fprintf(&b, "\n%s %s", e.Package, e.Process)
		}
		return b.String()

	case "add", "rm":
		if len(fields) < 2 {
			return "ERR usage: " + fields[0] + " <package> [process]"
		}
		e := hidelist.Entry{Package: fields[1]}
		if len(fields) > 2 {
			e.Process = fields[2]
		} else {
			e.Process = e.Package
		}
		var err error
		if fields[0] == "add" {
			err = store.Add(e)
		} else {
			if len(fields) == 2 {
				e.Process = ""
			}
			err = store.Remove(e)
		}
		if err != nil {
			return fmt.Sprintf("ERR %v", err)
		}
		// 运行中的监控器不回读清单库
		return "OK effective after restart"

	default:
		return "ERR unknown command " + fields[0]
	}
}

// Request 以客户端身份向控制套接字发送一条命令并取回应答
func Request(path, cmd string) (string, error) {
	addr, err := net.ResolveUnixAddr("unixpacket", path)
	if err != nil {
		return "", fmt.Errorf("control: resolve %s: %w", path, err)
	}
	conn, err := net.DialUnix("unixpacket", nil, addr)
	if err != nil {
		return "", fmt.Errorf("control: dial %s: %w", path, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	sock := unixsocket.FromConn(conn)
	if err := sock.SendMsg([]byte(cmd), unixsocket.Msg{}); err != nil {
		return "", fmt.Errorf("control: send: %w", err)
	}
	buf := make([]byte, 64<<10)
	n, _, err := sock.RecvMsg(buf)
	if err != nil {
		return "", fmt.Errorf("control: recv: %w", err)
	}
	return string(buf[:n]), nil
}
