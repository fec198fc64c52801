// Package console 用终端模拟界面节点的液晶屏和键盘。
package console

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/wfunc/door-lock/internal/errors"
	"github.com/wfunc/door-lock/internal/hmi"
)

// screenMsg 更新液晶屏
type screenMsg struct {
	top, bottom string
}

// statusMsg 更新状态栏
type statusMsg struct {
	text  string
	alert bool
}

// Model bubbletea 模型
type Model struct {
	title  string
	keys   *hmi.KeyQueue
	top    string
	bottom string
	status string
	alert  bool
	width  int
}

// NewModel 创建模型，按键写入 keys
func NewModel(title string, keys *hmi.KeyQueue) Model {
	return Model{title: title, keys: keys}
}

// Init 实现 tea.Model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update 实现 tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case screenMsg:
		m.top = msg.top
		m.bottom = msg.bottom

	case statusMsg:
		m.status = msg.text
		m.alert = msg.alert
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "ctrl+c", "esc", "q":
		return m, tea.Quit
	case "enter":
		m.keys.Press(hmi.KeyEnter)
	case "+", "-", "0", "1", "2", "3", "4", "5", "6", "7", "8", "9":
		m.keys.Press(hmi.Key(key[0]))
	}
	return m, nil
}

// View 实现 tea.Model
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(m.title))
	s.WriteString("\n")
	s.WriteString(lcdStyle.Render(fit(m.top) + "\n" + fit(m.bottom)))
	s.WriteString("\n")

	if m.status != "" {
		if m.alert {
			s.WriteString(alertStyle.Render(m.status))
		} else {
			s.WriteString(statusStyle.Render(m.status))
		}
		s.WriteString("\n")
	}

	s.WriteString(helpStyle.Render("0-9: digit  ENTER: confirm  +/-: menu  Q: quit"))
	return s.String()
}

// fit 截断或补齐到一行的宽度
func fit(line string) string {
	r := []rune(line)
	if len(r) > LCDWidth {
		r = r[:LCDWidth]
	}
	return string(r) + strings.Repeat(" ", LCDWidth-len(r))
}

// Console 运行中的终端界面，实现 hmi.Display
type Console struct {
	program *tea.Program
	keys    *hmi.KeyQueue
}

// New 创建终端界面
func New(ctx context.Context, title string, opts ...tea.ProgramOption) *Console {
	keys := hmi.NewKeyQueue(32)
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	return &Console{
		program: tea.NewProgram(NewModel(title, keys), opts...),
		keys:    keys,
	}
}

// Keypad 返回按键来源
func (c *Console) Keypad() hmi.Keypad {
	return c.keys
}

// Show 实现 hmi.Display，在 Run 开始前调用会阻塞
func (c *Console) Show(top, bottom string) {
	c.program.Send(screenMsg{top: top, bottom: bottom})
}

// Status 更新状态栏
func (c *Console) Status(text string, alert bool) {
	c.program.Send(statusMsg{text: text, alert: alert})
}

// Run 运行直到用户退出或 ctx 结束
func (c *Console) Run() error {
	if _, err := c.program.Run(); err != nil && err != tea.ErrProgramKilled {
		return errors.Wrap(err, errors.ErrUnknown, "终端界面")
	}
	return nil
}

// Quit 请求退出
func (c *Console) Quit() {
	c.program.Quit()
}
