package control

// State 控制节点状态
type State string

const (
	StateAwaitHandshake State = "await_handshake" // 等待界面节点初始化
	StateReady          State = "ready"           // 等待命令
	StateSetPassword1   State = "set_password_1"  // 接收第一次输入
	StateSetPassword2   State = "set_password_2"  // 接收第二次输入
	StateVerify         State = "verify"          // 校验密码
	StateAlarmSequence  State = "alarm_sequence"  // 启动报警序列
	StateDoorSequence   State = "door_sequence"   // 启动开门序列
	StateStopped        State = "stopped"         // 已退出
)
