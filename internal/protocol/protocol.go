// Package protocol 实现界面节点与控制节点之间的单字节命令协议。
//
// 线路上只有两类数据：单字节命令，以及以 '#' 结尾的数字密码串。
// 协议不做转义和校验，依赖串口本身可靠有序。
package protocol

import (
	"fmt"

	"github.com/wfunc/door-lock/internal/errors"
)

// Command 单字节命令
type Command byte

// 命令字定义（与参考固件保持一致）
const (
	CmdInitDone     Command = 0xFF // 界面节点初始化完成（界面→控制）
	CmdFlagFollows  Command = 'Y'  // 后面跟首次使用标志（控制→界面）
	CmdSetPassword  Command = 'C'  // 设置密码交换（双向）
	CmdMatch        Command = 'A'  // 密码匹配
	CmdMismatch     Command = 'B'  // 密码不匹配
	CmdVerify       Command = 'M'  // 开始校验（界面→控制）
	CmdVerifyResult Command = 'Z'  // 后面跟校验结果（控制→界面）
	CmdAlarm        Command = 'E'  // 连续输错，启动报警（界面→控制）
	CmdAlarmCleared Command = 'D'  // 报警结束（控制→界面）
	CmdUnlock       Command = 'T'  // 请求开门（界面→控制）
	CmdDoorOpen     Command = 'U'  // 门已打开
	CmdDoorClosing  Command = 'H'  // 门正在关闭
	CmdDoorLocked   Command = 'L'  // 门已锁上
)

// Sentinel 密码帧结束符
const Sentinel byte = '#'

// FirstUseMark 首次使用标志位的已初始化值
const FirstUseMark byte = 'F'

var commandNames = map[Command]string{
	CmdInitDone:     "INIT_DONE",
	CmdFlagFollows:  "FLAG_FOLLOWS",
	CmdSetPassword:  "SET_PASSWORD",
	CmdMatch:        "MATCH",
	CmdMismatch:     "MISMATCH",
	CmdVerify:       "VERIFY",
	CmdVerifyResult: "VERIFY_RESULT",
	CmdAlarm:        "ALARM",
	CmdAlarmCleared: "ALARM_CLEARED",
	CmdUnlock:       "UNLOCK",
	CmdDoorOpen:     "DOOR_OPEN",
	CmdDoorClosing:  "DOOR_CLOSING",
	CmdDoorLocked:   "DOOR_LOCKED",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", byte(c))
}

// Known 是否属于命令字集合
func (c Command) Known() bool {
	_, ok := commandNames[c]
	return ok
}

// Result 将匹配结果转换为命令字
func Result(matched bool) Command {
	if matched {
		return CmdMatch
	}
	return CmdMismatch
}

// MaxPasswordLen 密码最大位数
const MaxPasswordLen = 5

// Password 数字密码（不含结束符）
type Password []byte

// ParsePassword 解析由数字组成的密码
func ParsePassword(s string) (Password, error) {
	if len(s) == 0 {
		return nil, errors.New(errors.ErrPasswordEmpty)
	}
	if len(s) > MaxPasswordLen {
		return nil, errors.Newf(errors.ErrPasswordTooLong, "%d 位", len(s))
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return nil, errors.Newf(errors.ErrInvalidParam, "非数字字符 %q", s[i])
		}
	}
	return Password(s), nil
}

// Frame 编码为线路格式：数字 + '#'
func (p Password) Frame() []byte {
	frame := make([]byte, 0, len(p)+1)
	frame = append(frame, p...)
	return append(frame, Sentinel)
}

// String 打印时隐藏密码内容
func (p Password) String() string {
	masked := make([]byte, len(p))
	for i := range masked {
		masked[i] = '*'
	}
	return string(masked)
}

// Matches 逐字节比较，比较长度以 a 为准。
// b 中超出 a 长度的部分不参与比较；空的 a 永远不匹配。
func Matches(a, b []byte) bool {
	if len(a) == 0 {
		return false
	}
	for i := range a {
		if i >= len(b) || a[i] != b[i] {
			return false
		}
	}
	return true
}
