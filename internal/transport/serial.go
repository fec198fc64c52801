package transport

import (
	"github.com/tarm/serial"
	"github.com/wfunc/door-lock/internal/config"
	"github.com/wfunc/door-lock/internal/errors"
	"go.uber.org/zap"
)

// parseParity 解析校验位
func parseParity(p string) serial.Parity {
	switch p {
	case "O", "odd":
		return serial.ParityOdd
	case "E", "even":
		return serial.ParityEven
	case "M", "mark":
		return serial.ParityMark
	case "S", "space":
		return serial.ParitySpace
	default:
		return serial.ParityNone
	}
}

// parseStopBits 解析停止位
func parseStopBits(n int) serial.StopBits {
	if n == 2 {
		return serial.Stop2
	}
	return serial.Stop1
}

// SerialConfig 将配置转换为 tarm/serial 的端口配置
func SerialConfig(cfg *config.SerialConfig) *serial.Config {
	size := byte(cfg.DataBits)
	if size == 0 {
		size = serial.DefaultSize
	}
	return &serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.BaudRate,
		Size:        size,
		Parity:      parseParity(cfg.Parity),
		StopBits:    parseStopBits(cfg.StopBits),
		ReadTimeout: cfg.ReadTimeout,
	}
}

// OpenSerial 打开串口并包装为字节通道
func OpenSerial(cfg *config.SerialConfig, log *zap.Logger) (*Stream, error) {
	port, err := serial.OpenPort(SerialConfig(cfg))
	if err != nil {
		log.Error("打开串口失败",
			zap.String("port", cfg.Port),
			zap.Error(err))
		return nil, errors.Wrapf(err, errors.ErrSerialPortOpen, "端口 %s", cfg.Port)
	}

	// 丢弃打开前残留在缓冲区的数据
	if err := port.Flush(); err != nil {
		log.Warn("清空串口缓冲区失败", zap.Error(err))
	}

	log.Info("串口连接成功",
		zap.String("port", cfg.Port),
		zap.Int("baud_rate", cfg.BaudRate),
		zap.String("parity", cfg.Parity))

	return NewStream(port,
		WithRetry(cfg.RetryTimes, cfg.RetryInterval),
		WithLogger(log),
	), nil
}
