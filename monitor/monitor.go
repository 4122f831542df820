// Package monitor 实现隐藏守护进程的进程监控核心：
// 发现并附加 zygote，对每个被跟踪进程的每次停止进行分类，
// 识别隐藏目标并在其冻结状态下移交给隐藏助手。
package monitor

import (
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zqzqsb/hidemon/config"
	"github.com/zqzqsb/hidemon/hidelist"
	"github.com/zqzqsb/hidemon/pkg/pidset"
	"github.com/zqzqsb/hidemon/pkg/procfs"
)

// Monitor 持有全部监控状态。
// 除 uidIndex（互斥锁保护）与统计原子量外，所有表都只在
// 跟踪线程（Run 所在的锁定 OS 线程）上读写。
type Monitor struct {
	cfg *config.Config

	// procsByPkg 是隐藏清单的只读视图：包名 → 有序进程名列表。
	// 启动前装配完成，运行期间不再变化。
	procsByPkg map[string][]string

	mu       sync.Mutex
	uidIndex map[int][]string // uid mod 100000 → 进程名列表

	zygotes  map[int]procfs.NSID // zygote pid → 挂载命名空间标识
	attaches *pidset.Set         // zygote fork 事件宣告过、等待观察的 pid
	detaches *pidset.Set         // 为干净分离而主动 SIGSTOP 的 tid

	scanReq   chan struct{} // 合并式的 zygote 重扫请求
	inotifyFD int
	parkTimer *time.Timer

	// spawnHide 把冻结的目标移交给隐藏助手；可注入以便测试
	spawnHide func(pid int)

	zygoteCount atomic.Int32
	hiddenCount atomic.Uint64
}

// Stats 是暴露给控制接口的运行快照
type Stats struct {
	Zygotes int32
	Hidden  uint64
}

// New 创建监控器。entries 是监督路径启动前载入的隐藏清单，
// 监控器对其只读。
func New(cfg *config.Config, entries []hidelist.Entry) *Monitor {
	procsByPkg := make(map[string][]string)
	for _, e := range entries {
		procsByPkg[e.Package] = append(procsByPkg[e.Package], e.Process)
	}
	// 排序保证重建出的索引与遍历顺序无关
	for _, procs := range procsByPkg {
		sort.Strings(procs)
	}

	max := procfs.PIDMax()
	m := &Monitor{
		cfg:        cfg,
		procsByPkg: procsByPkg,
		uidIndex:   make(map[int][]string),
		zygotes:    make(map[int]procfs.NSID),
		attaches:   pidset.New(max),
		detaches:   pidset.New(max),
		scanReq:    make(chan struct{}, 1),
		inotifyFD:  -1,
	}
	m.spawnHide = m.defaultSpawnHide
	return m
}

// UpdateUIDMap 从包清单整体重建 uid 索引。
// 读侧与重建以同一把锁串行化，观察方要么看到旧表要么看到新表。
func (m *Monitor) UpdateUIDMap() error {
	f, err := os.Open(m.cfg.Platform.ManifestPath)
	if err != nil {
		return err
	}
	defer f.Close()

	idx := buildUIDIndex(f, m.procsByPkg)
	m.mu.Lock()
	m.uidIndex = idx
	m.mu.Unlock()
	return nil
}

// lookupUID 返回 uid（已取余）对应的进程名快照
func (m *Monitor) lookupUID(uid int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	procs := m.uidIndex[uid]
	if len(procs) == 0 {
		return nil
	}
	out := make([]string, len(procs))
	copy(out, procs)
	return out
}

// RequestZygoteScan 请求跟踪线程重扫 procfs 寻找新 zygote。
// 请求是合并式的：扫描尚未执行时重复请求不会累积。
func (m *Monitor) RequestZygoteScan() {
	select {
	case m.scanReq <- struct{}{}:
	default:
	}
}

// Stats 返回运行快照
func (m *Monitor) Stats() Stats {
	return Stats{
		Zygotes: m.zygoteCount.Load(),
		Hidden:  m.hiddenCount.Load(),
	}
}

// park 在 d 时长内等待命令或取消；返回 false 表示应当退出。
// 到期的定时器会被复用，避免事件循环每轮分配。
func (m *Monitor) park(done <-chan struct{}, d time.Duration) bool {
	if m.parkTimer == nil {
		m.parkTimer = time.NewTimer(d)
	} else {
		m.parkTimer.Reset(d)
	}
	select {
	case <-done:
		if !m.parkTimer.Stop() {
			<-m.parkTimer.C
		}
		return false
	case <-m.scanReq:
		if !m.parkTimer.Stop() {
			<-m.parkTimer.C
		}
		m.scanZygotes()
		return true
	case <-m.parkTimer.C:
		return true
	}
}
