// hidemon 是 zygote 进程监控守护进程及其附属小程序的统一入口：
//
//	hidemon daemon          运行监控守护进程
//	hidemon hide <pid>      隐藏助手（由守护进程自执行）
//	hidemon list|add|rm     编辑隐藏清单数据库
//	hidemon ctl <command>   向运行中的守护进程下发控制命令
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/zqzqsb/hidemon/config"
	"github.com/zqzqsb/hidemon/control"
	"github.com/zqzqsb/hidemon/hidedaemon"
	"github.com/zqzqsb/hidemon/hidelist"
	"github.com/zqzqsb/hidemon/monitor"
	"github.com/zqzqsb/hidemon/pkg/rlimit"
	"github.com/zqzqsb/hidemon/pkg/seccomp/libseccomp"
)

// defaultDeniedSyscalls 是守护进程自加固的默认黑名单。
// 这些系统调用与监控职责无关，出现即说明进程被劫持。
var defaultDeniedSyscalls = []string{
	"add_key", "keyctl", "request_key",
	"init_module", "finit_module", "delete_module",
	"kexec_load", "kexec_file_load",
	"userfaultfd", "open_by_handle_at",
	"swapon", "swapoff", "reboot",
}

func main() {
	app := &cli.App{
		Name:  "hidemon",
		Usage: "zygote process monitor with mount namespace hiding",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "yaml config file path",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "logrus level (trace/debug/info/warn/error)",
			},
		},
		Before: func(c *cli.Context) error {
			lvl, err := log.ParseLevel(c.String("log-level"))
			if err != nil {
				return err
			}
			log.SetLevel(lvl)
			return nil
		},
		Commands: []*cli.Command{
			daemonCommand(),
			hideCommand(),
			listCommand(),
			addCommand(),
			rmCommand(),
			ctlCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.Load(c.String("config"))
}

// daemonCommand 运行监控守护进程
func daemonCommand() *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "run the zygote monitor",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			// 自限制：抬高描述符上限，关掉 core dump
			limits := rlimit.RLimits{OpenFile: 65536, DisableCore: true}
			if err := limits.Apply(); err != nil {
				log.Warnf("apply %s: %v", limits.String(), err)
			}

			store, err := hidelist.OpenStore(cfg.Platform.HideDB)
			if err != nil {
				return err
			}
			defer store.Close()
			entries, err := store.Load()
			if err != nil {
				return err
			}
			log.Infof("hide list loaded, %d entries", len(entries))

			// 系统调用加固要在 goroutine 增多前装载
			if cfg.SeccompEnabled() {
				if err := installSeccomp(cfg); err != nil {
					return fmt.Errorf("install seccomp filter: %w", err)
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(),
				syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			m := monitor.New(cfg, entries)

			if cfg.Control.Socket != "" {
				srv := control.NewServer(cfg.Control.Socket, m, store)
				if err := srv.Start(ctx); err != nil {
					log.Warnf("control socket: %v", err)
				}
			}

			return m.Run(ctx)
		},
	}
}

func installSeccomp(cfg *config.Config) error {
	denied := cfg.Seccomp.DeniedSyscalls
	if len(denied) == 0 {
		denied = defaultDeniedSyscalls
	}
	builder := libseccomp.Builder{
		Errno:   denied,
		Default: libseccomp.ActionAllow,
	}
	filter, err := builder.Build()
	if err != nil {
		return err
	}
	if err := filter.Install(); err != nil {
		return err
	}
	log.Debugf("seccomp filter installed, %d syscalls denied", len(denied))
	return nil
}

// hideCommand 是隐藏助手入口。
// 守护进程把已冻结的目标 pid 交给它；它进入目标的挂载
// 命名空间完成清理，并负责恢复目标。
func hideCommand() *cli.Command {
	return &cli.Command{
		Name:      "hide",
		Usage:     "sanitize the mount view of a stopped process (internal)",
		ArgsUsage: "<pid>",
		Hidden:    true,
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("usage: hidemon hide <pid>")
			}
			pid, err := strconv.Atoi(c.Args().First())
			if err != nil || pid <= 0 {
				return fmt.Errorf("invalid pid %q", c.Args().First())
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			return hidedaemon.Run(pid, &cfg.Hide)
		},
	}
}

func openStore(c *cli.Context) (*hidelist.Store, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return hidelist.OpenStore(cfg.Platform.HideDB)
}

// listCommand 打印隐藏清单
func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "print hide targets",
		Action: func(c *cli.Context) error {
			store, err := openStore(c)
			if err != nil {
				return err
			}
			defer store.Close()
			entries, err := store.Load()
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%s %s\n", e.Package, e.Process)
			}
			return nil
		},
	}
}

// addCommand 添加隐藏目标；进程名缺省为包名
func addCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "add a hide target",
		ArgsUsage: "<package> [process]",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("usage: hidemon add <package> [process]")
			}
			e := hidelist.Entry{Package: c.Args().Get(0), Process: c.Args().Get(1)}
			if e.Process == "" {
				e.Process = e.Package
			}
			store, err := openStore(c)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Add(e)
		},
	}
}

// rmCommand 删除隐藏目标；不带进程名时删除整个包
func rmCommand() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Usage:     "remove a hide target",
		ArgsUsage: "<package> [process]",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("usage: hidemon rm <package> [process]")
			}
			store, err := openStore(c)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Remove(hidelist.Entry{
				Package: c.Args().Get(0),
				Process: c.Args().Get(1),
			})
		},
	}
}

// ctlCommand 向运行中的守护进程下发一条控制命令
func ctlCommand() *cli.Command {
	return &cli.Command{
		Name:      "ctl",
		Usage:     "send a command to the running daemon",
		ArgsUsage: "<status|reload|scan|ls|add|rm> [args]",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("usage: hidemon ctl <command> [args]")
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if cfg.Control.Socket == "" {
				return fmt.Errorf("control socket disabled in config")
			}
			reply, err := control.Request(cfg.Control.Socket, strings.Join(c.Args().Slice(), " "))
			if err != nil {
				return err
			}
			fmt.Println(reply)
			return nil
		},
	}
}
