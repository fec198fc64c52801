package transport

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/wfunc/door-lock/internal/errors"
	"go.uber.org/zap"
)

// Port 串口接口（用于测试）
type Port interface {
	io.ReadWriteCloser
}

// Stream 将阻塞的 io.ReadWriteCloser 包装为可取消的字节通道。
// 后台读协程把收到的字节放入缓冲通道，ReceiveByte 在通道和 ctx 之间选择。
type Stream struct {
	port   Port
	rx     chan byte
	tx     chan writeReq
	done   chan struct{}
	logger *zap.Logger

	retryTimes    int
	retryInterval time.Duration

	errMu   sync.Mutex
	readErr error

	closeOnce sync.Once
}

// writeReq 交给写协程的一次发送
type writeReq struct {
	ctx    context.Context
	b      byte
	result chan error
}

// Option 通道选项
type Option func(*Stream)

// WithRetry 写失败时的重试策略
func WithRetry(times int, interval time.Duration) Option {
	return func(s *Stream) {
		if times > 0 {
			s.retryTimes = times
		}
		s.retryInterval = interval
	}
}

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) Option {
	return func(s *Stream) {
		s.logger = l
	}
}

// NewStream 创建字节通道并启动读协程
func NewStream(port Port, opts ...Option) *Stream {
	s := &Stream{
		port:       port,
		rx:         make(chan byte, 256),
		tx:         make(chan writeReq),
		done:       make(chan struct{}),
		logger:     zap.NewNop(),
		retryTimes: 1,
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.readLoop()
	go s.writeLoop()

	return s
}

// Pipe 创建一对内存中直连的通道，两端的行为与同步串口一致
func Pipe(opts ...Option) (*Stream, *Stream) {
	a, b := net.Pipe()
	return NewStream(a, opts...), NewStream(b, opts...)
}

// readLoop 读协程
func (s *Stream) readLoop() {
	defer close(s.rx)

	buf := make([]byte, 64)
	for {
		n, err := s.port.Read(buf)
		for i := 0; i < n; i++ {
			select {
			case s.rx <- buf[i]:
			case <-s.done:
				return
			}
		}
		if err != nil {
			s.errMu.Lock()
			s.readErr = err
			s.errMu.Unlock()
			select {
			case <-s.done:
			default:
				s.logger.Warn("串口读取结束", zap.Error(err))
			}
			return
		}
		// 带读超时的串口在超时时返回 0, nil，继续读取即可
	}
}

// SendByte 发送一个字节。写操作在写协程中进行，阻塞的写入同样受 ctx 约束；
// ctx 结束后放弃等待，但已交给端口的字节仍可能发出。
func (s *Stream) SendByte(ctx context.Context, b byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-s.done:
		return errors.New(errors.ErrSerialClosed)
	default:
	}

	req := writeReq{ctx: ctx, b: b, result: make(chan error, 1)}
	select {
	case s.tx <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return errors.New(errors.ErrSerialClosed)
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return errors.New(errors.ErrSerialClosed)
	}
}

// writeLoop 写协程，串行执行所有写操作
func (s *Stream) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case req := <-s.tx:
			req.result <- s.write(req)
		}
	}
}

// write 写入一个字节，只对可重试的错误重试
func (s *Stream) write(req writeReq) error {
	var err error
	for i := 0; i < s.retryTimes; i++ {
		_, werr := s.port.Write([]byte{req.b})
		if werr == nil {
			return nil
		}
		err = classifyWrite(werr)

		if !errors.IsRetryable(err) || i == s.retryTimes-1 {
			break
		}
		s.logger.Debug("写入失败，重试", zap.Int("attempt", i+1), zap.Error(err))
		select {
		case <-req.ctx.Done():
			return req.ctx.Err()
		case <-s.done:
			return errors.New(errors.ErrSerialClosed)
		case <-time.After(s.retryInterval):
		}
	}
	return err
}

// classifyWrite 端口已关闭的错误不再重试
func classifyWrite(err error) error {
	switch {
	case stderrors.Is(err, io.ErrClosedPipe), stderrors.Is(err, os.ErrClosed), stderrors.Is(err, io.EOF):
		return errors.Wrap(err, errors.ErrSerialClosed)
	default:
		return errors.Wrap(err, errors.ErrSerialPortWrite)
	}
}

// ReceiveByte 接收一个字节
func (s *Stream) ReceiveByte(ctx context.Context) (byte, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case b, ok := <-s.rx:
		if !ok {
			return 0, s.closedErr()
		}
		return b, nil
	}
}

func (s *Stream) closedErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.readErr != nil && s.readErr != io.EOF {
		return errors.Wrap(s.readErr, errors.ErrSerialClosed)
	}
	return errors.New(errors.ErrSerialClosed)
}

// Close 关闭通道和底层端口
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.port.Close()
	})
	return err
}
