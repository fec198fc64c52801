package hmi

import (
	"bufio"
	"context"
	"io"

	"github.com/wfunc/door-lock/internal/errors"
)

// Key 按键
type Key byte

// 功能键
const (
	KeyEnter Key = '\r'
	KeyOpen  Key = '+' // 主菜单：开门
	KeyReset Key = '-' // 主菜单：修改密码
)

// IsDigit 是否数字键
func (k Key) IsDigit() bool {
	return k >= '0' && k <= '9'
}

// Keypad 键盘
type Keypad interface {
	// ReadKey 阻塞到有按键
	ReadKey(ctx context.Context) (Key, error)
}

// Display 两行字符液晶屏
type Display interface {
	// Show 清屏并显示两行文字
	Show(top, bottom string)
}

// KeyQueue 按键队列，终端界面和测试通过它注入按键
type KeyQueue struct {
	keys chan Key
}

// NewKeyQueue 创建按键队列
func NewKeyQueue(size int) *KeyQueue {
	return &KeyQueue{keys: make(chan Key, size)}
}

// Press 按下一个键，队列已满时丢弃
func (q *KeyQueue) Press(k Key) bool {
	select {
	case q.keys <- k:
		return true
	default:
		return false
	}
}

// Type 依次按下字符串中的每个字符，'\n' 视为回车
func (q *KeyQueue) Type(s string) {
	for i := 0; i < len(s); i++ {
		k := Key(s[i])
		if k == '\n' {
			k = KeyEnter
		}
		q.Press(k)
	}
}

// ReadKey 读取按键
func (q *KeyQueue) ReadKey(ctx context.Context) (Key, error) {
	select {
	case <-ctx.Done():
		return 0, errors.Wrap(ctx.Err(), errors.ErrCanceled, "等待按键")
	case k := <-q.keys:
		return k, nil
	}
}

// Feed 从 r 读取按键写入队列，'\n' 视为回车，直到 r 结束
func (q *KeyQueue) Feed(r io.Reader) error {
	br := bufio.NewReader(r)
	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrSerialPortRead, "读取按键")
		}
		switch b {
		case '\r':
		case '\n':
			q.Press(KeyEnter)
		default:
			q.Press(Key(b))
		}
	}
}
