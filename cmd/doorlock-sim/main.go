// doorlock-sim 在一个进程里通过内存管道运行两个节点，终端充当键盘和液晶屏。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wfunc/door-lock/internal/actuator"
	"github.com/wfunc/door-lock/internal/config"
	"github.com/wfunc/door-lock/internal/console"
	"github.com/wfunc/door-lock/internal/control"
	"github.com/wfunc/door-lock/internal/database"
	"github.com/wfunc/door-lock/internal/errors"
	"github.com/wfunc/door-lock/internal/hmi"
	"github.com/wfunc/door-lock/internal/keystore"
	"github.com/wfunc/door-lock/internal/logger"
	"github.com/wfunc/door-lock/internal/models"
	"github.com/wfunc/door-lock/internal/protocol"
	"github.com/wfunc/door-lock/internal/repository"
	"github.com/wfunc/door-lock/internal/sequencer"
	"github.com/wfunc/door-lock/internal/tick"
	"github.com/wfunc/door-lock/internal/transport"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	var (
		configPath = flag.String("config", "", "配置文件路径")
		backend    = flag.String("keystore", "memory", "密钥存储 (memory/database)")
	)
	flag.Parse()

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()
	cfg.KeyStore.Backend = *backend
	cfg.Log.Output = "file"

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.LogError(err, "模拟器退出")
		fmt.Printf("模拟器退出: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	var db *gorm.DB
	if cfg.KeyStore.Backend == "database" {
		var err error
		db, err = database.Open(&cfg.Database, logger.WithModule("database"))
		if err != nil {
			return err
		}
		defer database.Close(db)
		if err := database.AutoMigrate(db, logger.WithModule("database")); err != nil {
			return err
		}
	}

	store, err := keystore.New(&cfg.KeyStore, db)
	if err != nil {
		return err
	}

	hmiSide, controlSide := transport.Pipe()
	defer hmiSide.Close()
	defer controlSide.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ui := console.New(ctx, "Door Lock Simulator")

	opts := []control.Option{
		control.WithLayout(keystore.LayoutFromConfig(&cfg.KeyStore)),
		control.WithTiming(sequencer.Timing{Long: cfg.Timing.LongPeriod, Short: cfg.Timing.ShortPeriod}),
		control.WithLogger(logger.WithModule("control")),
		control.WithListener(func(e *models.AccessEvent) {
			ui.Status(describe(e), e.Kind == models.AccessEventAlarm)
		}),
	}
	if db != nil {
		opts = append(opts, control.WithEventRepository(repository.NewAccessEventRepository(db)))
	}
	ctrl := control.New(protocol.NewCodec(controlSide), store, control.Hardware{
		Tick:   tick.NewTicker(),
		Motor:  actuator.NewLogMotor(logger.WithModule("motor")),
		Buzzer: actuator.NewLogBuzzer(logger.WithModule("buzzer")),
	}, opts...)

	node := hmi.New(protocol.NewCodec(hmiSide), ui.Keypad(), ui,
		hmi.WithLogger(logger.WithModule("hmi")),
		hmi.WithMessageHold(cfg.HMI.MessageHold),
		hmi.WithMaxAttempts(cfg.HMI.MaxAttempts))

	errCh := make(chan error, 2)
	go func() { errCh <- ctrl.Serve(ctx) }()
	go func() {
		errCh <- node.Run(ctx)
		ui.Quit()
	}()

	uiErr := ui.Run()
	cancel()
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && !errors.Is(err, errors.ErrCanceled) {
			logger.Warn("节点退出", zap.Error(err))
		}
	}
	return uiErr
}

// describe 状态栏文字
func describe(e *models.AccessEvent) string {
	s := string(e.Kind)
	if e.Command != "" {
		s += " " + e.Command
	}
	if e.Result != "" {
		s += " (" + e.Result + ")"
	}
	return s
}
