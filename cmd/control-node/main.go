package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/wfunc/door-lock/internal/actuator"
	"github.com/wfunc/door-lock/internal/api"
	"github.com/wfunc/door-lock/internal/config"
	"github.com/wfunc/door-lock/internal/control"
	"github.com/wfunc/door-lock/internal/database"
	"github.com/wfunc/door-lock/internal/errors"
	"github.com/wfunc/door-lock/internal/keystore"
	"github.com/wfunc/door-lock/internal/logger"
	"github.com/wfunc/door-lock/internal/protocol"
	"github.com/wfunc/door-lock/internal/repository"
	"github.com/wfunc/door-lock/internal/sequencer"
	"github.com/wfunc/door-lock/internal/service"
	"github.com/wfunc/door-lock/internal/tick"
	"github.com/wfunc/door-lock/internal/transport"
	ws "github.com/wfunc/door-lock/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 控制节点进程
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	db     *gorm.DB
	stream *transport.Stream
	node   *control.Node
	hub    *ws.Hub
	router *api.Router

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
	)
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Cleanup()

	server := NewServer(cfg)
	if err := server.Start(); err != nil {
		logger.LogError(err, "控制节点启动失败")
		server.Shutdown()
		os.Exit(1)
	}

	server.WaitForShutdown()
	server.Shutdown()
	logger.Info("控制节点已安全关闭")
}

// NewServer 创建控制节点进程
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		logger: logger.GetLogger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 初始化组件并启动
func (s *Server) Start() error {
	s.logger.Info("正在启动控制节点...",
		zap.String("version", Version),
		zap.String("node", s.cfg.Node.Name))

	if err := s.initDatabase(); err != nil {
		return err
	}

	store, err := keystore.New(&s.cfg.KeyStore, s.db)
	if err != nil {
		return errors.Wrap(err, errors.ErrConfigValidate, "初始化密钥存储失败")
	}

	s.stream, err = transport.OpenSerial(&s.cfg.Serial, logger.WithModule("serial"))
	if err != nil {
		return err
	}

	s.initNode(store)
	s.initAPI()

	s.run("control", func(ctx context.Context) error {
		err := s.node.Serve(ctx)
		if err == nil || errors.IsCritical(err) || errors.Is(err, errors.ErrCanceled) {
			return err
		}
		// 控制节点停止后门锁不可用
		return errors.Wrap(err, errors.ErrNodeState, "控制节点停止")
	})
	if s.hub != nil {
		s.run("websocket", func(ctx context.Context) error {
			s.hub.Run(ctx)
			return nil
		})
	}
	if s.router != nil {
		s.run("api", s.router.Run)
	}

	// 热更新日志级别
	config.Watch(func(newCfg *config.Config) {
		logger.SetLevel(newCfg.Log.Level)
		s.logger.Info("配置已更新", zap.String("log_level", newCfg.Log.Level))
	})

	s.logger.Info("控制节点启动成功",
		zap.String("serial", s.cfg.Serial.Port),
		zap.String("keystore", s.cfg.KeyStore.Backend),
		zap.Bool("api", s.router != nil))
	return nil
}

// initDatabase 密钥存储或访问日志需要数据库时才连接
func (s *Server) initDatabase() error {
	if s.cfg.KeyStore.Backend != "database" && !s.cfg.API.Enabled {
		return nil
	}

	if err := database.Init(&s.cfg.Database); err != nil {
		return errors.Wrap(err, errors.ErrDatabaseConnect, "初始化数据库连接失败")
	}
	s.db = database.GetDB()

	if s.cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(s.db, logger.WithModule("database")); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}
	if !database.IsConnected(s.db) {
		return errors.New(errors.ErrDatabaseConnect, "数据库连接检查失败")
	}
	return nil
}

func (s *Server) initNode(store keystore.Store) {
	log := logger.WithModule("control")
	codec := protocol.NewCodec(s.stream,
		protocol.WithTimeout(s.cfg.Node.ProtocolTimeout),
		protocol.WithLogger(logger.WithModule("protocol")))

	opts := []control.Option{
		control.WithName(s.cfg.Node.Name),
		control.WithLayout(keystore.LayoutFromConfig(&s.cfg.KeyStore)),
		control.WithTiming(sequencer.Timing{
			Long:  s.cfg.Timing.LongPeriod,
			Short: s.cfg.Timing.ShortPeriod,
		}),
		control.WithLogger(log),
	}
	if s.db != nil {
		opts = append(opts, control.WithEventRepository(repository.NewAccessEventRepository(s.db)))
	}
	if s.cfg.API.Enabled {
		s.hub = ws.NewHub(logger.WithModule("websocket"))
		opts = append(opts, control.WithListener(s.hub.PublishEvent))
	}

	s.node = control.New(codec, store, control.Hardware{
		Tick:   tick.NewTicker(),
		Motor:  actuator.NewLogMotor(logger.WithModule("motor")),
		Buzzer: actuator.NewLogBuzzer(logger.WithModule("buzzer")),
	}, opts...)
}

func (s *Server) initAPI() {
	if !s.cfg.API.Enabled {
		return
	}
	repos := repository.NewManager(s.db)
	s.router = api.NewRouter(&s.cfg.API, api.Deps{
		DB:       s.db,
		Node:     s.node,
		Services: service.NewServices(repos, logger.WithModule("service")),
		Hub:      s.hub,
	}, logger.WithModule("api"))
}

// run 启动后台任务。严重错误关闭整个进程，其他错误只结束该任务
func (s *Server) run(name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := fn(s.ctx)
		if err == nil || errors.Is(err, errors.ErrCanceled) || s.ctx.Err() != nil {
			return
		}
		if errors.IsCritical(err) {
			logger.LogError(err, "后台任务异常退出，关闭进程", zap.String("task", name))
			s.cancel()
			return
		}
		s.logger.Warn("后台任务退出", zap.String("task", name), zap.Error(err))
	}()
}

// WaitForShutdown 等待退出信号或后台任务失败
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
	case <-s.ctx.Done():
	}
}

// Shutdown 关闭所有组件，执行器先回到安全状态
func (s *Server) Shutdown() {
	s.logger.Info("正在关闭控制节点...")
	s.cancel()

	// 串口读取会阻塞，先关闭让读取协程退出
	if s.stream != nil {
		s.stream.Close()
	}
	s.wg.Wait()

	if err := database.Close(s.db); err != nil {
		s.logger.Error("关闭数据库失败", zap.Error(err))
	}
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("门锁控制节点\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
