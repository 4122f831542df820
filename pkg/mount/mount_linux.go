package mount

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"
)

// Mount 执行挂载系统调用
// 如果是只读绑定挂载，需要重新挂载一次来确保只读属性生效
func (m *Mount) Mount() error {
	// 确保挂载目标存在（目录或文件）
	if err := ensureMountTargetExists(m.Source, m.Target); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	// 执行挂载系统调用
	if err := syscall.Mount(m.Source, m.Target, m.FsType, m.Flags, m.Data); err != nil {
		return fmt.Errorf("mount: %w", err)
	}
	// 对于只读绑定挂载，需要重新挂载一次
	// 因为在第一次挂载时 MS_RDONLY 标志会被忽略
	const bindRo = syscall.MS_BIND | syscall.MS_RDONLY
	if m.Flags&bindRo == bindRo {
		if err := syscall.Mount("", m.Target, m.FsType, m.Flags|syscall.MS_REMOUNT, m.Data); err != nil {
			return fmt.Errorf("remount: %w", err)
		}
	}
	return nil
}

// Unmount 惰性卸载挂载点（MNT_DETACH）。
// 目标路径仍被进程占用时挂载点先从命名空间摘除，
// 引用耗尽后由内核回收。
func (m *Mount) Unmount() error {
	if err := unix.Unmount(m.Target, unix.MNT_DETACH); err != nil {
		return fmt.Errorf("unmount %s: %w", m.Target, err)
	}
	return nil
}

// ensureMountTargetExists 确保挂载目标存在
// 如果源是文件，则创建目标文件
// 如果源是目录，则创建目标目录
func ensureMountTargetExists(source, target string) error {
	// 判断源是文件还是目录
	isFile := false
	if fi, err := os.Stat(source); err == nil {
		isFile = !fi.IsDir()
	}
	// 获取需要创建的目录路径
	dir := target
	if isFile {
		dir = filepath.Dir(target)
	}
	// 递归创建目录
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	// 如果源是文件，则创建目标文件
	if isFile {
		if err := syscall.Mknod(target, 0755, 0); err != nil {
			// 双重检查文件是否已存在
			// 避免并发创建的问题
			f, err1 := os.Lstat(target)
			if err1 == nil && f.Mode().IsRegular() {
				return nil
			}
			return err
		}
	}
	return nil
}

// String 返回挂载点的字符串表示
func (m Mount) String() string {
	flag := "rw"
	if m.IsReadOnly() {
		flag = "ro"
	}
	switch {
	case m.IsBindMount():
		return fmt.Sprintf("bind[%s:%s:%s]", m.Source, m.Target, flag)
	case m.IsTmpFs():
		return fmt.Sprintf("tmpfs[%s]", m.Target)
	default:
		return fmt.Sprintf("mount[%s:%s:%s:%s]", m.FsType, m.Source, m.Target, flag)
	}
}
