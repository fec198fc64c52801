package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Node     NodeConfig     `mapstructure:"node"`
	Serial   SerialConfig   `mapstructure:"serial"`
	KeyStore KeyStoreConfig `mapstructure:"keystore"`
	Database DatabaseConfig `mapstructure:"database"`
	Timing   TimingConfig   `mapstructure:"timing"`
	HMI      HMIConfig      `mapstructure:"hmi"`
	API      APIConfig      `mapstructure:"api"`
	Log      LogConfig      `mapstructure:"log"`
}

// NodeConfig 节点配置
type NodeConfig struct {
	Name string `mapstructure:"name"`
	// 协议阻塞调用的超时，0 表示无限等待
	ProtocolTimeout time.Duration `mapstructure:"protocol_timeout"`
}

// SerialConfig 串口配置
type SerialConfig struct {
	Port          string        `mapstructure:"port"`
	BaudRate      int           `mapstructure:"baud_rate"`
	DataBits      int           `mapstructure:"data_bits"`
	StopBits      int           `mapstructure:"stop_bits"`
	Parity        string        `mapstructure:"parity"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	RetryTimes    int           `mapstructure:"retry_times"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// KeyStoreConfig 持久化存储配置
type KeyStoreConfig struct {
	Backend         string `mapstructure:"backend"` // memory 或 database
	PasswordAddress uint16 `mapstructure:"password_address"`
	FirstUseAddress uint16 `mapstructure:"first_use_address"`
	Size            int    `mapstructure:"size"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// TimingConfig 执行序列的定时配置
type TimingConfig struct {
	LongPeriod  time.Duration `mapstructure:"long_period"`
	ShortPeriod time.Duration `mapstructure:"short_period"`
}

// HMIConfig 人机界面配置
type HMIConfig struct {
	MessageHold time.Duration `mapstructure:"message_hold"` // 提示信息停留时间
	MaxAttempts int           `mapstructure:"max_attempts"`
	Terminal    bool          `mapstructure:"terminal"`
}

// APIConfig 维护接口配置
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Mode    string `mapstructure:"mode"`
}

// Addr 监听地址
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化全局配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		var loaded *Config
		v, loaded, err = load(configPath)
		if err != nil {
			return
		}
		mu.Lock()
		cfg = loaded
		mu.Unlock()
	})

	return err
}

// Load 读取配置文件（不影响全局配置）
func Load(configPath string) (*Config, error) {
	_, c, err := load(configPath)
	return c, err
}

func load(configPath string) (*viper.Viper, *Config, error) {
	vp := viper.New()

	if configPath != "" {
		vp.SetConfigFile(configPath)
	} else {
		vp.SetConfigName("config")
		vp.SetConfigType("yaml")
		vp.AddConfigPath("./config")
		vp.AddConfigPath(".")
	}

	vp.SetEnvPrefix("DOOR_LOCK")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	if err := vp.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认配置
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("read config: %w", err)
		}
	}

	c := &Config{}
	if err := vp.Unmarshal(c); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	return vp, c, nil
}

// setDefaults 设置默认配置值，与参考硬件保持一致
func setDefaults(v *viper.Viper) {
	v.SetDefault("node.name", "control")
	v.SetDefault("node.protocol_timeout", "0s")

	// 9600 8N1
	v.SetDefault("serial.port", "/dev/ttyS0")
	v.SetDefault("serial.baud_rate", 9600)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.parity", "N")
	v.SetDefault("serial.read_timeout", "0s")
	v.SetDefault("serial.retry_times", 3)
	v.SetDefault("serial.retry_interval", "100ms")

	v.SetDefault("keystore.backend", "database")
	v.SetDefault("keystore.password_address", 0x0311)
	v.SetDefault("keystore.first_use_address", 0x0320)
	v.SetDefault("keystore.size", 2048)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/door-lock.db")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("timing.long_period", "7500ms")
	v.SetDefault("timing.short_period", "3s")

	v.SetDefault("hmi.message_hold", "1s")
	v.SetDefault("hmi.max_attempts", 3)
	v.SetDefault("hmi.terminal", true)

	v.SetDefault("api.enabled", false)
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8090)
	v.SetDefault("api.mode", "release")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "door-lock.log")
	v.SetDefault("log.file.max_size", 20)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.compress", true)
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Timing.LongPeriod <= 0 || c.Timing.ShortPeriod <= 0 {
		return fmt.Errorf("timing periods must be positive: long=%s short=%s",
			c.Timing.LongPeriod, c.Timing.ShortPeriod)
	}
	if c.HMI.MaxAttempts <= 0 {
		return fmt.Errorf("hmi.max_attempts must be positive: %d", c.HMI.MaxAttempts)
	}
	if int(c.KeyStore.PasswordAddress)+5 > c.KeyStore.Size ||
		int(c.KeyStore.FirstUseAddress) >= c.KeyStore.Size {
		return fmt.Errorf("keystore addresses out of range (size %d)", c.KeyStore.Size)
	}
	switch c.KeyStore.Backend {
	case "memory", "database":
	default:
		return fmt.Errorf("unsupported keystore backend: %s", c.KeyStore.Backend)
	}
	return nil
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	if v == nil {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		if err := newCfg.Validate(); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}

		mu.Lock()
		cfg = newCfg
		mu.Unlock()

		if callback != nil {
			callback(newCfg)
		}
	})
	v.WatchConfig()
}
