package control

import (
	"context"
	"net"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/zqzqsb/hidemon/pkg/unixsocket"
)

// Server 在本地套接字上接受监督命令
type Server struct {
	path  string
	mon   MonitorAPI
	store ListStore
	ln    *net.UnixListener
}

// NewServer 创建控制服务
func NewServer(path string, mon MonitorAPI, store ListStore) *Server {
	return &Server{path: path, mon: mon, store: store}
}

// Start 绑定套接字并在后台接受连接，直到 ctx 取消。
// 残留的旧套接字文件会被清掉；权限收紧到属主。
func (s *Server) Start(ctx context.Context) error {
	os.Remove(s.path)
	addr, err := net.ResolveUnixAddr("unixpacket", s.path)
	if err != nil {
		return err
	}
	ln, err := net.ListenUnix("unixpacket", addr)
	if err != nil {
		return err
	}
	if err := os.Chmod(s.path, 0600); err != nil {
		ln.Close()
		os.Remove(s.path)
		return err
	}
	s.ln = ln

	go func() {
		<-ctx.Done()
		ln.Close()
		os.Remove(s.path)
	}()
	go s.serve()
	return nil
}

func (s *Server) serve() {
	for {
		conn, err := s.ln.AcceptUnix()
		if err != nil {
			// 监听器已关闭
			return
		}
		go s.handle(conn)
	}
}

// handle 处理一条连接：一问一答。
// 对端凭证经 SCM_CREDENTIALS 校验，只有 root 可以下发命令。
func (s *Server) handle(conn *net.UnixConn) {
	defer conn.Close()

	sock := unixsocket.FromConn(conn)
	if err := sock.SetPassCred(1); err != nil {
		log.Debugf("control: passcred: %v", err)
		return
	}

	buf := make([]byte, 1024)
	n, msg, err := sock.RecvMsg(buf)
	if err != nil {
		log.Debugf("control: recv: %v", err)
		return
	}
	if msg.Cred == nil || msg.Cred.Uid != 0 {
		sock.SendMsg([]byte("ERR permission denied"), unixsocket.Msg{})
		return
	}

	reply := dispatch(string(buf[:n]), s.mon, s.store)
	if err := sock.SendMsg([]byte(reply), unixsocket.Msg{}); err != nil {
		log.Debugf("control: reply: %v", err)
	}
}
