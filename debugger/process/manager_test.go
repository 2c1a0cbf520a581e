package process

import (
	"errors"
	"github.com/fansqz/remote-debugger/constants"
	. "github.com/fansqz/remote-debugger/debugger"
	e "github.com/fansqz/remote-debugger/error"
	"github.com/stretchr/testify/assert"
	"testing"
)

type recordProcessListener struct {
	ListenerAdapter
	events []string
}

func (r *recordProcessListener) AddedThread(*Thread)      { r.events = append(r.events, "addedThread") }
func (r *recordProcessListener) RemovedThread(*Thread)    { r.events = append(r.events, "removedThread") }
func (r *recordProcessListener) AddedModule(MemoryModule) { r.events = append(r.events, "addedModule") }
func (r *recordProcessListener) RemovedModule(MemoryModule) {
	r.events = append(r.events, "removedModule")
}
func (r *recordProcessListener) RemovedNonExistingModule(MemoryModule) {
	r.events = append(r.events, "phantom")
}
func (r *recordProcessListener) ChangedActiveThread(_, current *Thread) {
	r.events = append(r.events, "active")
}

func TestThreads(t *testing.T) {
	p := NewProcessManager()
	listener := &recordProcessListener{}
	p.AddListener(listener)

	first := NewThread(1, constants.ThreadSuspended)
	second := NewThread(2, constants.ThreadRunning)
	assert.Nil(t, p.AddThread(first))
	assert.Nil(t, p.AddThread(second))
	assert.NotNil(t, p.AddThread(NewThread(1, constants.ThreadRunning)))
	assert.Equal(t, 2, p.GetThreadCount())

	thread, err := p.GetThread(2)
	assert.Nil(t, err)
	assert.Equal(t, second, thread)
	_, err = p.GetThread(3)
	assert.True(t, errors.Is(err, e.ErrThreadNotFound))

	p.SetActiveThread(first)
	assert.Equal(t, first, p.GetActiveThread())

	// 删除活动线程会清空活动线程
	assert.Nil(t, p.RemoveThread(1))
	assert.Nil(t, p.GetActiveThread())
	assert.True(t, errors.Is(p.RemoveThread(1), e.ErrThreadNotFound))

	assert.Equal(t, []string{"addedThread", "addedThread", "active", "active", "removedThread"}, listener.events)
}

func TestSetActiveThreadOfUnknownThreadPanics(t *testing.T) {
	p := NewProcessManager()
	assert.Panics(t, func() {
		p.SetActiveThread(NewThread(9, constants.ThreadRunning))
	})
	assert.NotPanics(t, func() { p.SetActiveThread(nil) })
}

func TestModules(t *testing.T) {
	p := NewProcessManager()
	listener := &recordProcessListener{}
	p.AddListener(listener)

	m := MemoryModule{Name: "m", BaseAddress: 0x1000, Size: 0x1000}
	n := MemoryModule{Name: "n", BaseAddress: 0x4000, Size: 0x100}
	assert.Nil(t, p.AddModule(n))
	assert.Nil(t, p.AddModule(m))
	assert.True(t, errors.Is(p.AddModule(m), e.ErrModuleAlreadyLoaded))

	// 按基址排序
	assert.Equal(t, []MemoryModule{m, n}, p.GetModules())

	found, ok := p.GetModule(0x1050)
	assert.True(t, ok)
	assert.Equal(t, m, found)
	found, ok = p.GetModule(0x2000)
	assert.True(t, ok)
	assert.Equal(t, m, found)
	_, ok = p.GetModule(0x3000)
	assert.False(t, ok)
	_, ok = p.GetModule(0x10)
	assert.False(t, ok)

	found, ok = p.GetModuleByName("M")
	assert.True(t, ok)
	assert.Equal(t, m, found)

	assert.Nil(t, p.RemoveModule(m))
	assert.False(t, p.HasModule(m))
	assert.True(t, errors.Is(p.RemoveModule(m), e.ErrModuleNotFound))
	p.RemoveNonExistingModule(m)

	assert.Equal(t, []string{"addedModule", "addedModule", "removedModule", "phantom"}, listener.events)
}

func TestAttachedAndExceptions(t *testing.T) {
	p := NewProcessManager()
	assert.False(t, p.IsAttached())
	p.SetAttached(true)
	assert.True(t, p.IsAttached())

	p.AddException(DebuggerException{ThreadID: 1, Address: 0x10, Code: 0xc0000005, Name: "access violation"})
	assert.Equal(t, 1, len(p.GetExceptions()))
	p.ClearExceptions()
	assert.Empty(t, p.GetExceptions())

	info := &TargetInformation{AddressSize: 64}
	assert.Nil(t, p.GetTargetInformation())
	p.SetTargetInformation(info)
	assert.Equal(t, info, p.GetTargetInformation())
}

func TestMemoryCache(t *testing.T) {
	m := NewMemory()
	assert.True(t, m.IsEmpty())
	m.Store(0x100, []byte{1, 2, 3, 4})
	data, ok := m.Read(0x101, 2)
	assert.True(t, ok)
	assert.Equal(t, []byte{2, 3}, data)
	_, ok = m.Read(0x102, 4)
	assert.False(t, ok)

	// 相邻的块合并
	m.Store(0x104, []byte{5, 6})
	data, ok = m.Read(0x100, 6)
	assert.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, data)

	// 覆盖中间的数据
	m.Store(0x0fe, []byte{9, 9, 7, 7})
	data, ok = m.Read(0x0fe, 8)
	assert.True(t, ok)
	assert.Equal(t, []byte{9, 9, 7, 7, 3, 4, 5, 6}, data)

	m.Store(0x102, []byte{8})
	data, _ = m.Read(0x0fe, 8)
	assert.Equal(t, []byte{9, 9, 7, 7, 8, 4, 5, 6}, data)

	m.Clear()
	assert.False(t, m.HasData(0x100, 1))
}

func TestMemoryReadOutOfRange(t *testing.T) {
	m := NewMemory()
	m.Store(0x100, []byte{1, 2, 3, 4})

	// 地址加长度溢出时不能当作缓存命中
	assert.False(t, m.HasData(0x102, ^uint64(0)))
	assert.False(t, m.HasData(0x101, ^uint64(0)-0x80))
	_, ok := m.Read(0x104, 1)
	assert.False(t, ok)
	_, ok = m.Read(0x200, 1)
	assert.False(t, ok)
	data, ok := m.Read(0x102, 2)
	assert.True(t, ok)
	assert.Equal(t, []byte{3, 4}, data)
}

type recordThreadListener struct {
	requested []constants.ThreadState
	confirmed []constants.ThreadState
	registers int
}

func (r *recordThreadListener) StateRequested(_ *Thread, _, newState constants.ThreadState) {
	r.requested = append(r.requested, newState)
}

func (r *recordThreadListener) StateChanged(_ *Thread, _, newState constants.ThreadState) {
	r.confirmed = append(r.confirmed, newState)
}

func (r *recordThreadListener) RegistersChanged(*Thread) {
	r.registers++
}

func TestThreadState(t *testing.T) {
	thread := NewThread(1, constants.ThreadRunning)
	listener := &recordThreadListener{}
	thread.AddListener(listener)

	thread.RequestState(constants.ThreadSuspended)
	thread.SetState(constants.ThreadSuspended)
	thread.SetState(constants.ThreadRunning)
	thread.SetRegisters([]RegisterValue{{Name: "rip", Value: 0x1050, IsPC: true}})

	assert.Equal(t, []constants.ThreadState{constants.ThreadSuspended}, listener.requested)
	// 状态没有变化时不通知
	assert.Equal(t, []constants.ThreadState{constants.ThreadRunning}, listener.confirmed)
	assert.Equal(t, 1, listener.registers)
	assert.Equal(t, RelocatedAddress(0x1050), thread.CurrentAddress())

	thread.RemoveListener(listener)
	thread.RequestState(constants.ThreadSuspended)
	assert.Equal(t, 1, len(listener.requested))
}
