package main

import (
	"context"
	"fmt"
	"github.com/fansqz/remote-debugger/config"
	"github.com/fansqz/remote-debugger/debugger/session"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"net"
	"os"
	"os/signal"
	"syscall"
)

// 定义版本号
const Version = "1.0.1"

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:          "remote-debugger",
		Short:        "Synchronize a remote debug agent with a local debugger model",
		Version:      Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			SetupLogger(cfg.Log)
			defer CloseLogger()
			return run(cmd.Context(), cfg)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml)")
	flags.String("transport", "", "transport to the agent: tcp or websocket")
	flags.String("address", "", "agent address")
	flags.Int("port", 0, "TCP port the DAP server listens on")
	flags.String("log-level", "", "log level")
	flags.String("log-path", "", "log file")
	return cmd
}

// run 启动DAP服务并连接agent，直到收到退出信号
func run(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	debugSession := session.NewDebugSession(ctx, cfg.SessionOption())
	defer debugSession.Close()

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
	if err != nil {
		logrus.Errorf("[Main] listen at %d fail, err = %v", cfg.Server.Port, err)
		return err
	}
	logrus.Infof("[Main] started listening at: %s", listener.Addr().String())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serve(ctx, listener, debugSession)
	})
	g.Go(func() error {
		// 连接失败不退出，客户端可以通过attach请求重新连接
		if err := debugSession.Connect(ctx); err != nil {
			logrus.Warnf("[Main] connect agent %s fail, err = %v", cfg.Agent.Address, err)
		}
		return nil
	})
	return g.Wait()
}
