// 包清单（packages.xml 形态的逐行伪 XML）解析。
// 清单可能正在被平台重写，任何格式损坏都按"跳过该行"处理，
// 下一次 close-after-write 事件会触发完整重建。
package monitor

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// platformUIDBase 是平台 uid 编码基数：uid = user_id*100000 + app_uid
const platformUIDBase = 100000

// buildUIDIndex 流式扫描清单，构建 uid → 进程名列表 的索引。
// 只有出现在隐藏清单（procsByPkg）中的包才会进入索引；
// 键统一取 uid 对 100000 的余数，与查询侧保持一致。
func buildUIDIndex(r io.Reader, procsByPkg map[string][]string) map[int][]string {
	idx := make(map[int][]string)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		attrs, ok := parsePackageTag(sc.Text())
		if !ok {
			continue
		}
		procs := procsByPkg[attrs["name"]]
		if len(procs) == 0 {
			continue
		}
		// userId 与 sharedUserId 同时存在时两个 uid 都登记
		for _, key := range [...]string{"userId", "sharedUserId"} {
			v, ok := attrs[key]
			if !ok {
				continue
			}
			uid, err := strconv.Atoi(v)
			if err != nil {
				continue
			}
			uid %= platformUIDBase
			idx[uid] = append(idx[uid], procs...)
		}
	}
	// 读错误不终止重建：扫过的部分仍然有效
	return idx
}

// parsePackageTag 把一行 `<package key="value" ...>` 解析为属性表。
// 输入按只读处理；属性顺序任意；值中的 XML 实体会被还原。
// 不是 package 标签或没有任何可解析属性时返回 ok=false。
func parsePackageTag(line string) (map[string]string, bool) {
	s := strings.TrimSpace(line)
	if !strings.HasPrefix(s, "<package ") {
		return nil, false
	}
	s = s[len("<package "):]
	if i := strings.LastIndexByte(s, '>'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "/")

	attrs := make(map[string]string)
	for i := 0; i < len(s); {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		if i >= len(s) {
			break
		}
		eq := strings.IndexByte(s[i:], '=')
		if eq < 0 {
			break
		}
		key := strings.TrimSpace(s[i : i+eq])
		i += eq + 1
		// 只接受双引号包围的值；引号缺失视为该行损坏，放弃剩余部分
		if i >= len(s) || s[i] != '"' {
			break
		}
		i++
		end := strings.IndexByte(s[i:], '"')
		if end < 0 {
			break
		}
		if key != "" {
			attrs[key] = unescapeXML(s[i : i+end])
		}
		i += end + 1
	}
	if len(attrs) == 0 {
		return nil, false
	}
	return attrs, true
}

// unescapeXML 还原属性值中的 XML 实体（含数字字符引用）。
// 未知实体原样保留。
func unescapeXML(s string) string {
	if !strings.ContainsRune(s, '&') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] != '&' {
			b.WriteByte(s[i])
			i++
			continue
		}
		end := strings.IndexByte(s[i:], ';')
		if end < 0 {
			b.WriteString(s[i:])
			break
		}
		ent := s[i+1 : i+end]
		switch {
		case ent == "amp":
			b.WriteByte('&')
		case ent == "lt":
			b.WriteByte('<')
		case ent == "gt":
			b.WriteByte('>')
		case ent == "quot":
			b.WriteByte('"')
		case ent == "apos":
			b.WriteByte('\'')
		case strings.HasPrefix(ent, "#"):
			if r, ok := parseCharRef(ent[1:]); ok {
				b.WriteRune(r)
			} else {
				b.WriteString(s[i : i+end+1])
			}
		default:
			b.WriteString(s[i : i+end+1])
		}
		i += end + 1
	}
	return b.String()
}

func parseCharRef(s string) (rune, bool) {
	base := 10
	if strings.HasPrefix(s, "x") || strings.HasPrefix(s, "X") {
		base = 16
		s = s[1:]
	}
	n, err := strconv.ParseInt(s, base, 32)
	if err != nil || n < 0 {
		return 0, false
	}
	return rune(n), true
}
