// Package hidedaemon 实现隐藏助手：进入目标进程的挂载命名空间，
// 摘除 root 改动留下的挂载痕迹，再恢复被冻结的目标。
package hidedaemon

import (
	"sort"
	"strings"

	"github.com/zqzqsb/hidemon/pkg/mount"
)

// BuildPlan 从挂载表中筛出需要卸载的挂载点。
// 命中条件：挂载来源包含 keyword，或挂载点路径匹配任一前缀。
// 结果按路径深度降序排列，先卸子挂载再卸父挂载。
func BuildPlan(table []mount.Mount, keyword string, prefixes []string) []mount.Mount {
	var plan []mount.Mount
	for _, m := range table {
		if matches(m, keyword, prefixes) {
			plan = append(plan, m)
		}
	}
	sort.SliceStable(plan, func(i, j int) bool {
		di := strings.Count(plan[i].Target, "/")
		dj := strings.Count(plan[j].Target, "/")
		if di != dj {
			return di > dj
		}
		return plan[i].Target > plan[j].Target
	})
	return plan
}

func matches(m mount.Mount, keyword string, prefixes []string) bool {
	if keyword != "" && strings.Contains(m.Source, keyword) {
		return true
	}
	for _, p := range prefixes {
		p = strings.TrimSuffix(p, "/")
		if p == "" {
			continue
		}
		if m.Target == p || strings.HasPrefix(m.Target, p+"/") {
			return true
		}
	}
	return false
}
