package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/looplab/fsm"
)

// 会话状态常量
const (
	StateIdle    = "idle"
	StateActive  = "active"
	StateStopped = "stopped"
)

// 事件常量
const (
	EventStart = "start"
	EventStop  = "stop"
)

// Machine 跟踪会话状态机
// idle -> active -> stopped，stopped 为终态
type Machine struct {
	mu            sync.RWMutex
	fsm           *fsm.FSM
	onStateChange func(from, to string)
}

// NewMachine 创建状态机，初始为 idle
func NewMachine(onStateChange func(from, to string)) *Machine {
	m := &Machine{onStateChange: onStateChange}

	m.fsm = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: EventStart, Src: []string{StateIdle}, Dst: StateActive},
			{Name: EventStop, Src: []string{StateActive}, Dst: StateStopped},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if m.onStateChange != nil && e.Src != e.Dst {
					m.onStateChange(e.Src, e.Dst)
				}
			},
		},
	)

	return m
}

// Current 获取当前状态
func (m *Machine) Current() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Current()
}

// Is 是否处于指定状态
func (m *Machine) Is(state string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Is(state)
}

// Trigger 触发事件
func (m *Machine) Trigger(event string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fsm.Event(context.Background(), event); err != nil {
		return fmt.Errorf("trigger event %s: %w", event, err)
	}
	return nil
}

// CanTransition 检查是否可以转换
func (m *Machine) CanTransition(event string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Can(event)
}
