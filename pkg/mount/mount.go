// Package mount 提供了 Linux 系统中挂载点管理的功能
package mount

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"syscall"
)

// Mount 定义了挂载点的基本属性
// 这个结构体用于描述一个挂载或卸载操作所需的所有信息
type Mount struct {
	Source string  // 挂载源（如设备文件、目录或特殊文件系统名称）
	Target string  // 挂载目标（挂载点的路径）
	FsType string  // 文件系统类型（如 ext4、tmpfs、proc 等）
	Data   string  // 挂载选项（如 size=64m 等）
	Flags  uintptr // 挂载标志（如 MS_RDONLY、MS_BIND 等）
}

// IsBindMount 判断是否为绑定挂载
// 通过检查 MS_BIND 标志位来确定
func (m Mount) IsBindMount() bool {
	return m.Flags&syscall.MS_BIND == syscall.MS_BIND
}

// IsReadOnly 判断是否为只读挂载
// 通过检查 MS_RDONLY 标志位来确定
func (m Mount) IsReadOnly() bool {
	return m.Flags&syscall.MS_RDONLY == syscall.MS_RDONLY
}

// IsTmpFs 判断是否为 tmpfs 文件系统
func (m Mount) IsTmpFs() bool {
	return m.FsType == "tmpfs"
}

// ParseTable 解析 /proc/<pid>/mounts 格式的挂载表。
// 每行格式：source target fstype options dump pass
// 字段不足的行跳过；路径中的八进制转义会被还原。
func ParseTable(r io.Reader) ([]Mount, error) {
	var table []Mount
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 {
			continue
		}
		table = append(table, Mount{
			Source: unescapeOctal(fields[0]),
			Target: unescapeOctal(fields[1]),
			FsType: fields[2],
		})
	}
	if err := sc.Err(); err != nil {
		return table, err
	}
	return table, nil
}

// unescapeOctal 还原挂载表中的 \NNN 八进制转义
// 内核用它编码路径中的空格、制表符等字符
func unescapeOctal(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] == '\\' && i+3 < len(s) {
			if n, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(n))
				i += 4
				continue
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}
