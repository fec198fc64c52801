package actuator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogMotor(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := NewLogMotor(zap.New(core))

	require.NoError(t, m.Rotate(Clockwise, FullDuty))
	assert.Equal(t, MotorState{Running: true, Direction: Clockwise, Duty: 100}, m.State())

	require.NoError(t, m.Stop())
	assert.False(t, m.State().Running)

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "CW", logs.All()[0].ContextMap()["direction"])
}

func TestLogBuzzer(t *testing.T) {
	b := NewLogBuzzer(zap.NewNop())
	require.NoError(t, b.On())
	assert.True(t, b.IsOn())
	require.NoError(t, b.Off())
	assert.False(t, b.IsOn())
}

func TestRecorder(t *testing.T) {
	var (
		r             = NewRecorder()
		motor  Motor  = r
		buzzer Buzzer = r
	)

	motor.Rotate(Clockwise, FullDuty)
	motor.Stop()
	motor.Rotate(CounterClockwise, FullDuty)
	buzzer.On()
	buzzer.Off()

	assert.Equal(t, []string{
		"rotate CW 100",
		"stop",
		"rotate CCW 100",
		"buzzer on",
		"buzzer off",
	}, r.Actions())

	r.Clear()
	assert.Empty(t, r.Actions())
	assert.Equal(t, "Direction(7)", Direction(7).String())
}
