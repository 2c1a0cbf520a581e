package process

import (
	"github.com/fansqz/remote-debugger/constants"
	. "github.com/fansqz/remote-debugger/debugger"
	"github.com/fansqz/remote-debugger/utils/gosync"
	"sync"
)

// ThreadListener 线程变化的监听者
type ThreadListener interface {
	// StateRequested 本地请求修改线程状态，还没有得到agent确认
	StateRequested(thread *Thread, oldState, newState constants.ThreadState)
	// StateChanged agent确认了线程状态
	StateChanged(thread *Thread, oldState, newState constants.ThreadState)
	// RegistersChanged 寄存器变化
	RegistersChanged(thread *Thread)
}

// Thread 目标进程中的线程
type Thread struct {
	id uint64

	lock           sync.RWMutex
	state          constants.ThreadState
	registers      []RegisterValue
	currentAddress RelocatedAddress

	listenerLock sync.RWMutex
	listeners    []ThreadListener
}

func NewThread(id uint64, state constants.ThreadState) *Thread {
	return &Thread{id: id, state: state}
}

func (t *Thread) ID() uint64 {
	return t.id
}

func (t *Thread) State() constants.ThreadState {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.state
}

// Registers 返回寄存器的副本
func (t *Thread) Registers() []RegisterValue {
	t.lock.RLock()
	defer t.lock.RUnlock()
	registers := make([]RegisterValue, len(t.registers))
	copy(registers, t.registers)
	return registers
}

// CurrentAddress 线程当前的PC
func (t *Thread) CurrentAddress() RelocatedAddress {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.currentAddress
}

// RequestState 本地请求修改线程状态，监听者负责把请求发送给agent
func (t *Thread) RequestState(state constants.ThreadState) {
	old, changed := t.swapState(state)
	if !changed {
		return
	}
	t.notify(func(l ThreadListener) { l.StateRequested(t, old, state) })
}

// SetState agent确认的线程状态，不会再发送命令
func (t *Thread) SetState(state constants.ThreadState) {
	old, changed := t.swapState(state)
	if !changed {
		return
	}
	t.notify(func(l ThreadListener) { l.StateChanged(t, old, state) })
}

func (t *Thread) swapState(state constants.ThreadState) (constants.ThreadState, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	old := t.state
	t.state = state
	return old, old != state
}

// SetRegisters 更新寄存器，PC寄存器同时更新当前地址
func (t *Thread) SetRegisters(registers []RegisterValue) {
	t.lock.Lock()
	t.registers = registers
	for _, register := range registers {
		if register.IsPC {
			t.currentAddress = RelocatedAddress(register.Value)
		}
	}
	t.lock.Unlock()
	t.notify(func(l ThreadListener) { l.RegistersChanged(t) })
}

func (t *Thread) AddListener(listener ThreadListener) {
	t.listenerLock.Lock()
	defer t.listenerLock.Unlock()
	t.listeners = append(t.listeners, listener)
}

func (t *Thread) RemoveListener(listener ThreadListener) {
	t.listenerLock.Lock()
	defer t.listenerLock.Unlock()
	for i, l := range t.listeners {
		if l == listener {
			t.listeners = append(t.listeners[:i:i], t.listeners[i+1:]...)
			return
		}
	}
}

func (t *Thread) notify(f func(l ThreadListener)) {
	t.listenerLock.RLock()
	listeners := make([]ThreadListener, len(t.listeners))
	copy(listeners, t.listeners)
	t.listenerLock.RUnlock()
	for _, listener := range listeners {
		l := listener
		_ = gosync.Safe("thread listener", func() { f(l) })
	}
}
