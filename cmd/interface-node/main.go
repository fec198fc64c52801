package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wfunc/door-lock/internal/config"
	"github.com/wfunc/door-lock/internal/console"
	"github.com/wfunc/door-lock/internal/errors"
	"github.com/wfunc/door-lock/internal/hmi"
	"github.com/wfunc/door-lock/internal/logger"
	"github.com/wfunc/door-lock/internal/protocol"
	"github.com/wfunc/door-lock/internal/transport"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径")
	flag.Parse()

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	// 终端界面占用标准输出，日志改写文件
	if cfg.HMI.Terminal && cfg.Log.Output != "file" {
		cfg.Log.Output = "file"
	}
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, errors.ErrCanceled) {
		logger.LogError(err, "界面节点退出")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	stream, err := transport.OpenSerial(&cfg.Serial, logger.WithModule("serial"))
	if err != nil {
		return err
	}
	defer stream.Close()

	codec := protocol.NewCodec(stream,
		protocol.WithTimeout(cfg.Node.ProtocolTimeout),
		protocol.WithLogger(logger.WithModule("protocol")))

	opts := []hmi.Option{
		hmi.WithLogger(logger.WithModule("hmi")),
		hmi.WithMessageHold(cfg.HMI.MessageHold),
		hmi.WithMaxAttempts(cfg.HMI.MaxAttempts),
	}

	if !cfg.HMI.Terminal {
		keys := hmi.NewKeyQueue(32)
		go func() {
			if err := keys.Feed(os.Stdin); err != nil {
				logger.LogError(err, "读取标准输入失败")
			}
		}()
		node := hmi.New(codec, keys, hmi.NewLogDisplay(logger.WithModule("lcd")), opts...)
		return node.Run(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ui := console.New(ctx, "Door Lock")
	opts = append(opts, hmi.WithStateChange(func(from, to hmi.State) {
		ui.Status(string(to), to == hmi.StateLockout)
	}))
	node := hmi.New(codec, ui.Keypad(), ui, opts...)

	errCh := make(chan error, 1)
	go func() {
		err := node.Run(ctx)
		if err != nil && !errors.Is(err, errors.ErrCanceled) {
			logger.Error("界面节点异常", zap.Error(err))
		}
		errCh <- err
		ui.Quit()
	}()

	// 终端退出即结束进程
	uiErr := ui.Run()
	cancel()
	// 关闭串口让阻塞中的读取返回
	stream.Close()
	if err := <-errCh; err != nil && !errors.Is(err, errors.ErrCanceled) {
		return err
	}
	return uiErr
}
