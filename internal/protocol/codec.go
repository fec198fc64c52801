package protocol

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/wfunc/door-lock/internal/errors"
	"go.uber.org/zap"
)

// Transport 字节级全双工通道。
// SendByte 阻塞到对端接收，ReceiveByte 阻塞到有数据到达，二者都应响应 ctx 取消。
type Transport interface {
	SendByte(ctx context.Context, b byte) error
	ReceiveByte(ctx context.Context) (byte, error)
}

// Codec 协议编解码器
type Codec struct {
	transport Transport
	timeout   time.Duration // 0 表示无限等待
	writeMu   sync.Mutex
	logger    *zap.Logger
}

// Option 编解码器选项
type Option func(*Codec)

// WithTimeout 为每次阻塞调用设置超时
func WithTimeout(d time.Duration) Option {
	return func(c *Codec) {
		c.timeout = d
	}
}

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) Option {
	return func(c *Codec) {
		c.logger = l
	}
}

// NewCodec 创建编解码器
func NewCodec(t Transport, opts ...Option) *Codec {
	c := &Codec{
		transport: t,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout 当前超时策略
func (c *Codec) Timeout() time.Duration {
	return c.timeout
}

func (c *Codec) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

// Send 发送单字节命令
func (c *Codec) Send(ctx context.Context, cmd Command) error {
	return c.SendRaw(ctx, byte(cmd))
}

// SendRaw 发送任意字节（例如首次使用标志的原始值）
func (c *Codec) SendRaw(ctx context.Context, b byte) error {
	ctx, cancel := c.scope(ctx)
	defer cancel()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.transport.SendByte(ctx, b); err != nil {
		return wrapIO(err, errors.ErrSerialPortWrite, "发送 %s", Command(b))
	}
	c.logger.Debug("tx", zap.Stringer("command", Command(b)))
	return nil
}

// Receive 接收单字节
func (c *Codec) Receive(ctx context.Context) (Command, error) {
	ctx, cancel := c.scope(ctx)
	defer cancel()
	return c.receive(ctx)
}

// Wait 等待下一条命令，不受超时策略限制，用于空闲等待
func (c *Codec) Wait(ctx context.Context) (Command, error) {
	return c.receive(ctx)
}

func (c *Codec) receive(ctx context.Context) (Command, error) {
	b, err := c.transport.ReceiveByte(ctx)
	if err != nil {
		return 0, wrapIO(err, errors.ErrSerialPortRead, "接收命令")
	}
	c.logger.Debug("rx", zap.Stringer("command", Command(b)))
	return Command(b), nil
}

// Expect 等待指定命令，期间收到的其他字节被丢弃
func (c *Codec) Expect(ctx context.Context, want Command) error {
	ctx, cancel := c.scope(ctx)
	defer cancel()
	return c.expect(ctx, want)
}

// Await 与 Expect 相同但不受超时策略限制，用于等待序列信号
func (c *Codec) Await(ctx context.Context, want Command) error {
	return c.expect(ctx, want)
}

func (c *Codec) expect(ctx context.Context, want Command) error {
	for {
		b, err := c.transport.ReceiveByte(ctx)
		if err != nil {
			return wrapIO(err, errors.ErrSerialPortRead, "等待 %s", want)
		}
		if Command(b) == want {
			c.logger.Debug("rx", zap.Stringer("command", want))
			return nil
		}
		c.logger.Debug("丢弃非预期字节",
			zap.Stringer("want", want),
			zap.Stringer("got", Command(b)))
	}
}

// SendPassword 发送密码帧，整帧发送期间独占写通道
func (c *Codec) SendPassword(ctx context.Context, p Password) error {
	ctx, cancel := c.scope(ctx)
	defer cancel()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	for _, b := range p.Frame() {
		if err := c.transport.SendByte(ctx, b); err != nil {
			return wrapIO(err, errors.ErrSerialPortWrite, "发送密码帧")
		}
	}
	c.logger.Debug("tx password", zap.Int("len", len(p)))
	return nil
}

// ReceivePassword 读取到结束符为止。
// 超长的帧会被完整读完以保持同步，然后返回 ErrPasswordTooLong。
func (c *Codec) ReceivePassword(ctx context.Context) (Password, error) {
	ctx, cancel := c.scope(ctx)
	defer cancel()

	buf := make(Password, 0, MaxPasswordLen)
	overflow := 0
	for {
		b, err := c.transport.ReceiveByte(ctx)
		if err != nil {
			return nil, wrapIO(err, errors.ErrSerialPortRead, "接收密码帧")
		}
		if b == Sentinel {
			break
		}
		if len(buf) < MaxPasswordLen {
			buf = append(buf, b)
		} else {
			overflow++
		}
	}

	c.logger.Debug("rx password", zap.Int("len", len(buf)+overflow))
	if overflow > 0 {
		return buf, errors.Newf(errors.ErrPasswordTooLong, "%d 位", len(buf)+overflow)
	}
	return buf, nil
}

func wrapIO(err error, code errors.ErrorCode, format string, args ...interface{}) error {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.Wrapf(err, errors.ErrSerialTimeout, format, args...)
	case stderrors.Is(err, context.Canceled):
		return errors.Wrapf(err, errors.ErrCanceled, format, args...)
	default:
		return errors.Wrapf(err, code, format, args...)
	}
}
