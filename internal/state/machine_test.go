package state

import (
	"testing"

	"github.com/looplab/fsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachineLifecycle(t *testing.T) {
	var transitions [][2]string
	m := NewMachine(func(from, to string) {
		transitions = append(transitions, [2]string{from, to})
	})

	assert.Equal(t, StateIdle, m.Current())
	assert.True(t, m.CanTransition(EventStart))
	assert.False(t, m.CanTransition(EventStop))

	require.NoError(t, m.Trigger(EventStart))
	assert.True(t, m.Is(StateActive))

	require.NoError(t, m.Trigger(EventStop))
	assert.Equal(t, StateStopped, m.Current())

	assert.Equal(t, [][2]string{{StateIdle, StateActive}, {StateActive, StateStopped}}, transitions)
}

func TestMachineStoppedIsTerminal(t *testing.T) {
	m := NewMachine(nil)
	require.NoError(t, m.Trigger(EventStart))
	require.NoError(t, m.Trigger(EventStop))

	err := m.Trigger(EventStart)
	require.Error(t, err)
	var invalid fsm.InvalidEventError
	assert.ErrorAs(t, err, &invalid)

	err = m.Trigger(EventStop)
	require.Error(t, err)
	assert.Equal(t, StateStopped, m.Current())
}

func TestMachineStopFromIdle(t *testing.T) {
	m := NewMachine(nil)
	assert.Error(t, m.Trigger(EventStop))
	assert.Equal(t, StateIdle, m.Current())
}
