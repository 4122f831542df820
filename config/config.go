// Package config 提供守护进程的集中配置（yaml 文件 + 默认值）。
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是守护进程的根配置
type Config struct {
	Platform PlatformConfig `yaml:"platform"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Hide     HideConfig     `yaml:"hide"`
	Control  ControlConfig  `yaml:"control"`
	Seccomp  SeccompConfig  `yaml:"seccomp"`

	// SourcePath 记录配置文件来源，自执行隐藏助手时原样转交
	SourcePath string `yaml:"-"`
}

// PlatformConfig 描述平台文件的位置
type PlatformConfig struct {
	// ManifestPath 是包清单文件（逐行 <package .../> 标签）
	ManifestPath string `yaml:"manifest_path"`
	// AppProcess 是应用加载器二进制；存在 32/64 位变体时
	// 以 AppProcess+"32"/"64" 探测
	AppProcess string `yaml:"app_process"`
	// HideDB 是隐藏清单 sqlite 数据库路径
	HideDB string `yaml:"hide_db"`
}

// MonitorConfig 调节事件循环的等待节奏
type MonitorConfig struct {
	// PollInterval 是有被跟踪进程但暂无事件时的轮询间隔
	PollInterval time.Duration `yaml:"poll_interval"`
	// IdleWait 是完全无被跟踪进程时的休眠上限（可被命令打断）
	IdleWait time.Duration `yaml:"idle_wait"`
}

// HideConfig 描述隐藏助手进程的行为
type HideConfig struct {
	// Helper 覆盖隐藏助手命令；为空时自执行 "hide <pid>" 子命令
	Helper string `yaml:"helper"`
	// SourceKeyword：挂载来源包含该关键字的挂载点全部卸载
	SourceKeyword string `yaml:"source_keyword"`
	// UnmountPrefixes：挂载点匹配这些前缀时卸载
	UnmountPrefixes []string `yaml:"unmount_prefixes"`
	// MaskPaths：卸载后再以 tmpfs 覆盖的残留目录
	MaskPaths []string `yaml:"mask_paths"`
}

// ControlConfig 描述监督进程的控制套接字
type ControlConfig struct {
	// Socket 是控制套接字路径；为空时不开启
	Socket string `yaml:"socket"`
}

// SeccompConfig 控制守护进程自身的系统调用加固
type SeccompConfig struct {
	Enabled *bool `yaml:"enabled"`
	// DeniedSyscalls 覆盖默认的拒绝清单
	DeniedSyscalls []string `yaml:"denied_syscalls"`
}

// Default 返回面向 Android 形态平台的默认配置
func Default() *Config {
	enabled := true
	return &Config{
		Platform: PlatformConfig{
			ManifestPath: "/data/system/packages.xml",
			AppProcess:   "/system/bin/app_process",
			HideDB:       "/data/adb/hidemon.db",
		},
		Monitor: MonitorConfig{
			PollInterval: 20 * time.Millisecond,
			IdleWait:     time.Minute,
		},
		Hide: HideConfig{
			SourceKeyword: "magisk",
			UnmountPrefixes: []string{
				"/sbin/.magisk",
				"/system/etc/init/magisk",
			},
		},
		Control: ControlConfig{
			Socket: "/dev/.hidemon.sock",
		},
		Seccomp: SeccompConfig{Enabled: &enabled},
	}
}

// Load 读取 yaml 配置文件并叠加在默认值之上。
// path 为空时直接返回默认配置。
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.SourcePath = path
	return cfg, nil
}

// applyDefaults 补齐被显式清零的字段
func (c *Config) applyDefaults() {
	d := Default()
	if c.Monitor.PollInterval <= 0 {
		c.Monitor.PollInterval = d.Monitor.PollInterval
	}
	if c.Monitor.IdleWait <= 0 {
		c.Monitor.IdleWait = d.Monitor.IdleWait
	}
	if c.Seccomp.Enabled == nil {
		c.Seccomp.Enabled = d.Seccomp.Enabled
	}
}

func (c *Config) validate() error {
	if c.Platform.ManifestPath == "" {
		return fmt.Errorf("config: platform.manifest_path must not be empty")
	}
	if c.Platform.AppProcess == "" {
		return fmt.Errorf("config: platform.app_process must not be empty")
	}
	if c.Platform.HideDB == "" {
		return fmt.Errorf("config: platform.hide_db must not be empty")
	}
	return nil
}

// SeccompEnabled 返回是否启用自加固
func (c *Config) SeccompEnabled() bool {
	return c.Seccomp.Enabled == nil || *c.Seccomp.Enabled
}
