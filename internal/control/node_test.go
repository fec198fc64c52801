package control

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/door-lock/internal/actuator"
	"github.com/wfunc/door-lock/internal/config"
	"github.com/wfunc/door-lock/internal/database"
	"github.com/wfunc/door-lock/internal/errors"
	"github.com/wfunc/door-lock/internal/keystore"
	"github.com/wfunc/door-lock/internal/models"
	"github.com/wfunc/door-lock/internal/protocol"
	"github.com/wfunc/door-lock/internal/sequencer"
	"github.com/wfunc/door-lock/internal/tick"
	"github.com/wfunc/door-lock/internal/transport"
	"go.uber.org/zap"
)

// harness 在内存管道的一端运行控制节点，另一端由测试扮演界面节点
type harness struct {
	t        *testing.T
	hmi      *protocol.Codec
	node     *Node
	store    keystore.Store
	tick     *tick.Manual
	recorder *actuator.Recorder
	cancel   context.CancelFunc
	done     chan error

	mu     sync.Mutex
	events []*models.AccessEvent
}

func newHarness(t *testing.T, store keystore.Store, opts ...Option) *harness {
	t.Helper()

	a, b := transport.Pipe()
	h := &harness{
		t:        t,
		hmi:      protocol.NewCodec(a, protocol.WithTimeout(2*time.Second)),
		store:    store,
		tick:     tick.NewManual(),
		recorder: actuator.NewRecorder(),
		done:     make(chan error, 1),
	}

	opts = append(opts, WithListener(func(e *models.AccessEvent) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.events = append(h.events, e)
	}))
	h.node = New(protocol.NewCodec(b), store, Hardware{
		Tick:   h.tick,
		Motor:  h.recorder,
		Buzzer: h.recorder,
	}, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.node.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		<-h.done
		a.Close()
		b.Close()
	})
	return h
}

func (h *harness) ctx() context.Context {
	return context.Background()
}

// handshake 返回控制节点上报的首次使用标志
func (h *harness) handshake() byte {
	h.t.Helper()
	require.NoError(h.t, h.hmi.Send(h.ctx(), protocol.CmdInitDone))
	require.NoError(h.t, h.hmi.Expect(h.ctx(), protocol.CmdFlagFollows))
	flag, err := h.hmi.Receive(h.ctx())
	require.NoError(h.t, err)
	return byte(flag)
}

func (h *harness) sendFrame(frame []byte) {
	h.t.Helper()
	for _, b := range frame {
		require.NoError(h.t, h.hmi.SendRaw(h.ctx(), b))
	}
}

func (h *harness) setPassword(first, second string) protocol.Command {
	h.t.Helper()
	require.NoError(h.t, h.hmi.Send(h.ctx(), protocol.CmdSetPassword))
	h.sendFrame(append([]byte(first), protocol.Sentinel))
	require.NoError(h.t, h.hmi.Expect(h.ctx(), protocol.CmdSetPassword))
	h.sendFrame(append([]byte(second), protocol.Sentinel))
	require.NoError(h.t, h.hmi.Expect(h.ctx(), protocol.CmdSetPassword))
	result, err := h.hmi.Receive(h.ctx())
	require.NoError(h.t, err)
	return result
}

func (h *harness) verify(candidate string) protocol.Command {
	h.t.Helper()
	require.NoError(h.t, h.hmi.Send(h.ctx(), protocol.CmdVerify))
	h.sendFrame(append([]byte(candidate), protocol.Sentinel))
	require.NoError(h.t, h.hmi.Expect(h.ctx(), protocol.CmdVerifyResult))
	result, err := h.hmi.Receive(h.ctx())
	require.NoError(h.t, err)
	return result
}

// waitArmed 等待控制节点启动序列
func (h *harness) waitArmed() {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		return h.node.Sequencer().State().Active
	}, time.Second, time.Millisecond)
}

func (h *harness) expectSilence() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(h.ctx(), 30*time.Millisecond)
	defer cancel()
	cmd, err := h.hmi.Receive(ctx)
	require.Error(h.t, err, "unexpected %s", cmd)
}

func (h *harness) eventKinds() []models.AccessEventKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	kinds := make([]models.AccessEventKind, 0, len(h.events))
	for _, e := range h.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func TestHandshakeFirstUse(t *testing.T) {
	store := keystore.NewMemory(keystore.DefaultSize)
	h := newHarness(t, store)

	// 报告原始值，持久化已初始化标志
	assert.Equal(t, keystore.Erased, h.handshake())
	v, err := store.ReadCell(context.Background(), keystore.DefaultFirstUseAddress)
	require.NoError(t, err)
	assert.Equal(t, protocol.FirstUseMark, v)

	require.Eventually(t, func() bool { return h.node.State() == StateReady }, time.Second, time.Millisecond)
	st := h.node.Status()
	assert.True(t, st.FirstUse)
	assert.Equal(t, keystore.Erased, st.FirstUseRaw)
	assert.NotEmpty(t, st.SessionID)

	// 重启后报告已初始化
	h2 := newHarness(t, store)
	assert.Equal(t, protocol.FirstUseMark, h2.handshake())
	assert.False(t, h2.node.Status().FirstUse)
}

func TestHandshakeIgnoresNoise(t *testing.T) {
	h := newHarness(t, keystore.NewMemory(keystore.DefaultSize))
	h.sendFrame([]byte{'x', 'M', 0x00})
	assert.Equal(t, keystore.Erased, h.handshake())
}

func TestSetThenVerify(t *testing.T) {
	for _, p := range []string{"7", "12", "123", "1234", "12345", "00000", "90817"} {
		t.Run(p, func(t *testing.T) {
			h := newHarness(t, keystore.NewMemory(keystore.DefaultSize))
			h.handshake()

			assert.Equal(t, protocol.CmdMatch, h.setPassword(p, p))
			assert.Equal(t, protocol.CmdMatch, h.verify(p))
		})
	}
}

func TestDatabaseStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "door-lock.db")
	db, err := database.Open(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          path,
		MaxIdleConns: 1,
		MaxOpenConns: 1,
		LogLevel:     "silent",
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })
	require.NoError(t, database.AutoMigrate(db, zap.NewNop()))

	store, err := keystore.New(&config.KeyStoreConfig{Backend: "database"}, db)
	require.NoError(t, err)

	h := newHarness(t, store)
	assert.Equal(t, keystore.Erased, h.handshake())
	assert.Equal(t, protocol.CmdMatch, h.setPassword("1234", "1234"))
	assert.Equal(t, protocol.CmdMatch, h.verify("1234"))
	assert.Equal(t, protocol.CmdMismatch, h.verify("4321"))

	v, err := store.ReadCell(context.Background(), keystore.DefaultFirstUseAddress)
	require.NoError(t, err)
	assert.Equal(t, protocol.FirstUseMark, v)

	field, err := store.Read(context.Background(), keystore.DefaultPasswordAddress, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte{'1', '2', '3', '4', 0}, field)

	// 重启后仍是已初始化
	h2 := newHarness(t, store)
	assert.Equal(t, protocol.FirstUseMark, h2.handshake())
	assert.Equal(t, protocol.CmdMatch, h2.verify("1234"))
}

func TestSetMismatchKeepsStoredPassword(t *testing.T) {
	store := keystore.NewMemory(keystore.DefaultSize)
	h := newHarness(t, store)
	h.handshake()

	require.Equal(t, protocol.CmdMatch, h.setPassword("4321", "4321"))
	before, err := store.Read(context.Background(), keystore.DefaultPasswordAddress, 5)
	require.NoError(t, err)

	assert.Equal(t, protocol.CmdMismatch, h.setPassword("11111", "22222"))
	assert.Equal(t, protocol.CmdMismatch, h.setPassword("123", "124"))

	after, err := store.Read(context.Background(), keystore.DefaultPasswordAddress, 5)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, protocol.CmdMatch, h.verify("4321"))
}

func TestVerifyBeforeSet(t *testing.T) {
	h := newHarness(t, keystore.NewMemory(keystore.DefaultSize))
	h.handshake()

	assert.Equal(t, protocol.CmdMismatch, h.verify("12345"))
	assert.Equal(t, protocol.CmdMismatch, h.verify("1"))
}

func TestShorterPasswordOverwritesWholeField(t *testing.T) {
	store := keystore.NewMemory(keystore.DefaultSize)
	h := newHarness(t, store)
	h.handshake()

	require.Equal(t, protocol.CmdMatch, h.setPassword("12345", "12345"))
	require.Equal(t, protocol.CmdMatch, h.setPassword("98", "98"))

	field, err := store.Read(context.Background(), keystore.DefaultPasswordAddress, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte{'9', '8', 0, 0, 0}, field)

	assert.Equal(t, protocol.CmdMatch, h.verify("98"))
	// 旧密码的尾部不再残留
	assert.Equal(t, protocol.CmdMismatch, h.verify("98345"))
	assert.Equal(t, protocol.CmdMismatch, h.verify("12345"))
}

func TestPrefixComparison(t *testing.T) {
	h := newHarness(t, keystore.NewMemory(keystore.DefaultSize))
	h.handshake()

	// 只比较到第一次输入的长度
	assert.Equal(t, protocol.CmdMatch, h.setPassword("123", "12345"))
	assert.Equal(t, protocol.CmdMismatch, h.setPassword("12345", "123"))

	// 校验同样以输入长度为准
	assert.Equal(t, protocol.CmdMatch, h.verify("12"))
	assert.Equal(t, protocol.CmdMismatch, h.verify("1234"))
	assert.Equal(t, protocol.CmdMismatch, h.verify(""))
}

func TestOverlongPasswordIsMismatch(t *testing.T) {
	h := newHarness(t, keystore.NewMemory(keystore.DefaultSize))
	h.handshake()

	assert.Equal(t, protocol.CmdMismatch, h.setPassword("1234567", "1234567"))
	assert.Equal(t, protocol.CmdMatch, h.setPassword("55", "55"))
	assert.Equal(t, protocol.CmdMismatch, h.verify("5500000"))
	assert.Equal(t, protocol.CmdMatch, h.verify("55"))
}

// failingStore 写入总是失败的存储
type failingStore struct {
	keystore.Store
}

func (failingStore) Write(ctx context.Context, addr uint16, data []byte) error {
	return errors.New(errors.ErrKeyStoreWrite, "模拟写入失败")
}

func (failingStore) WriteCell(ctx context.Context, addr uint16, b byte) error {
	return errors.New(errors.ErrKeyStoreWrite, "模拟写入失败")
}

func TestStoreWriteFailure(t *testing.T) {
	h := newHarness(t, failingStore{keystore.NewMemory(keystore.DefaultSize)})

	// 首次使用标志写入失败仍上报原始值
	assert.Equal(t, keystore.Erased, h.handshake())

	// 保存失败按不匹配上报，用户需要重新输入
	assert.Equal(t, protocol.CmdMismatch, h.setPassword("123", "123"))

	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		last := h.events[len(h.events)-1]
		return last.Kind == models.AccessEventSetPassword && last.Result == models.AccessResultError
	}, time.Second, time.Millisecond)
}

func TestAlarmSequence(t *testing.T) {
	h := newHarness(t, keystore.NewMemory(keystore.DefaultSize))
	h.handshake()

	require.NoError(t, h.hmi.Send(h.ctx(), protocol.CmdAlarm))
	h.waitArmed()
	assert.Equal(t, []string{"buzzer on"}, h.recorder.Actions())

	for i := 1; i < sequencer.AlarmTicks; i++ {
		require.True(t, h.tick.Fire())
	}
	h.expectSilence()

	require.True(t, h.tick.Fire())
	cmd, err := h.hmi.Receive(h.ctx())
	require.NoError(t, err)
	assert.Equal(t, protocol.CmdAlarmCleared, cmd)

	assert.False(t, h.tick.Armed())
	assert.Equal(t, 6*sequencer.DefaultLongTick, h.tick.Elapsed())
	assert.Equal(t, []string{"buzzer on", "buzzer off"}, h.recorder.Actions())
	h.expectSilence()

	assert.Eventually(t, func() bool {
		kinds := h.eventKinds()
		return kinds[len(kinds)-1] == models.AccessEventAlarmCleared
	}, time.Second, time.Millisecond)
}

func TestDoorSequence(t *testing.T) {
	h := newHarness(t, keystore.NewMemory(keystore.DefaultSize))
	h.handshake()

	require.NoError(t, h.hmi.Send(h.ctx(), protocol.CmdUnlock))
	h.waitArmed()

	expect := func(want protocol.Command, at time.Duration) {
		t.Helper()
		cmd, err := h.hmi.Receive(h.ctx())
		require.NoError(t, err)
		assert.Equal(t, want, cmd)
		assert.Equal(t, at, h.tick.Elapsed())
	}

	h.tick.Fire()
	h.expectSilence()
	h.tick.Fire()
	expect(protocol.CmdDoorOpen, 15*time.Second)

	h.tick.Fire()
	expect(protocol.CmdDoorClosing, 18*time.Second)

	h.tick.Fire()
	h.expectSilence()
	h.tick.Fire()
	expect(protocol.CmdDoorLocked, 33*time.Second)

	assert.False(t, h.tick.Armed())
	h.expectSilence()
	assert.Equal(t, []string{"rotate CW 100", "stop", "rotate CCW 100", "stop"}, h.recorder.Actions())
}

func TestRearmPreemptsRunningSequence(t *testing.T) {
	h := newHarness(t, keystore.NewMemory(keystore.DefaultSize))
	h.handshake()

	require.NoError(t, h.hmi.Send(h.ctx(), protocol.CmdUnlock))
	h.waitArmed()
	h.tick.Fire()

	require.NoError(t, h.hmi.Send(h.ctx(), protocol.CmdAlarm))
	require.Eventually(t, func() bool {
		return h.node.Sequencer().State().Chain == sequencer.ChainAlarm
	}, time.Second, time.Millisecond)

	assert.Contains(t, h.eventKinds(), models.AccessEventPreempted)
	assert.Equal(t, sequencer.AlarmTicks, h.tick.FireUntilStopped(100))

	cmd, err := h.hmi.Receive(h.ctx())
	require.NoError(t, err)
	assert.Equal(t, protocol.CmdAlarmCleared, cmd)
}

func TestUnknownCommandIgnored(t *testing.T) {
	h := newHarness(t, keystore.NewMemory(keystore.DefaultSize))
	h.handshake()

	h.sendFrame([]byte{'Q', 'A', '#'})
	h.expectSilence()
	assert.Equal(t, protocol.CmdMismatch, h.verify("1"))
}

func TestServeStopsOnCancel(t *testing.T) {
	h := newHarness(t, keystore.NewMemory(keystore.DefaultSize))
	h.handshake()

	require.NoError(t, h.hmi.Send(h.ctx(), protocol.CmdUnlock))
	h.waitArmed()

	h.cancel()
	select {
	case err := <-h.done:
		assert.True(t, errors.Is(err, errors.ErrCanceled))
		h.done <- err
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}

	// 退出时执行器回到安全状态
	assert.False(t, h.tick.Armed())
	assert.Equal(t, StateStopped, h.node.State())
	assert.Equal(t, []string{"rotate CW 100", "stop", "buzzer off"}, h.recorder.Actions())
}

func TestExchangeTimeoutResyncs(t *testing.T) {
	a, b := transport.Pipe()
	defer a.Close()
	defer b.Close()

	hmi := protocol.NewCodec(a, protocol.WithTimeout(2*time.Second))
	node := New(protocol.NewCodec(b, protocol.WithTimeout(20*time.Millisecond)),
		keystore.NewMemory(keystore.DefaultSize),
		Hardware{Tick: tick.NewManual(), Motor: actuator.NewRecorder(), Buzzer: actuator.NewRecorder()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- node.Serve(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	require.NoError(t, hmi.Send(ctx, protocol.CmdInitDone))
	require.NoError(t, hmi.Expect(ctx, protocol.CmdFlagFollows))
	_, err := hmi.Receive(ctx)
	require.NoError(t, err)

	// 只发了一半的密码帧，控制节点超时后回到空闲
	require.NoError(t, hmi.Send(ctx, protocol.CmdVerify))
	require.NoError(t, hmi.SendRaw(ctx, '1'))
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, StateReady, node.State())

	require.NoError(t, hmi.Send(ctx, protocol.CmdVerify))
	require.NoError(t, hmi.SendPassword(ctx, protocol.Password("1")))
	require.NoError(t, hmi.Expect(ctx, protocol.CmdVerifyResult))
	result, err := hmi.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.CmdMismatch, result)
}
