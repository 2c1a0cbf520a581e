package process

import (
	"fmt"
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	. "github.com/fansqz/remote-debugger/debugger"
	e "github.com/fansqz/remote-debugger/error"
	"github.com/fansqz/remote-debugger/utils/gosync"
	"sync"
)

// Listener 目标进程变化的监听者
type Listener interface {
	AddedThread(thread *Thread)
	RemovedThread(thread *Thread)
	AddedModule(module MemoryModule)
	RemovedModule(module MemoryModule)
	// RemovedNonExistingModule agent报告卸载了一个本地不存在的模块
	RemovedNonExistingModule(module MemoryModule)
	ChangedActiveThread(old, current *Thread)
	ChangedMemoryMap(memoryMap MemoryMap)
	ChangedTargetInformation(info *TargetInformation)
	ChangedAttached(attached bool)
	RaisedException(exception DebuggerException)
}

// ListenerAdapter 空实现，嵌入以后只需要实现关心的方法
type ListenerAdapter struct{}

func (ListenerAdapter) AddedThread(*Thread)                         {}
func (ListenerAdapter) RemovedThread(*Thread)                       {}
func (ListenerAdapter) AddedModule(MemoryModule)                    {}
func (ListenerAdapter) RemovedModule(MemoryModule)                  {}
func (ListenerAdapter) RemovedNonExistingModule(MemoryModule)       {}
func (ListenerAdapter) ChangedActiveThread(*Thread, *Thread)        {}
func (ListenerAdapter) ChangedMemoryMap(MemoryMap)                  {}
func (ListenerAdapter) ChangedTargetInformation(*TargetInformation) {}
func (ListenerAdapter) ChangedAttached(bool)                        {}
func (ListenerAdapter) RaisedException(DebuggerException)           {}

// ProcessManager 目标进程的本地模型
// 一次调试会话一个，断开连接以后清空
type ProcessManager struct {
	lock sync.RWMutex

	threads []*Thread
	// 模块按基址排序，用于根据地址查找模块
	modules      *treemap.Map
	memory       *Memory
	memoryMap    MemoryMap
	activeThread *Thread
	attached     bool
	targetInfo   *TargetInformation
	exceptions   []DebuggerException

	listenerLock sync.RWMutex
	listeners    []Listener
}

func NewProcessManager() *ProcessManager {
	return &ProcessManager{
		modules: treemap.NewWith(utils.UInt64Comparator),
		memory:  NewMemory(),
	}
}

func (p *ProcessManager) AddListener(listener Listener) {
	p.listenerLock.Lock()
	defer p.listenerLock.Unlock()
	p.listeners = append(p.listeners, listener)
}

func (p *ProcessManager) RemoveListener(listener Listener) {
	p.listenerLock.Lock()
	defer p.listenerLock.Unlock()
	for i, l := range p.listeners {
		if l == listener {
			p.listeners = append(p.listeners[:i:i], p.listeners[i+1:]...)
			return
		}
	}
}

func (p *ProcessManager) notify(f func(l Listener)) {
	p.listenerLock.RLock()
	listeners := make([]Listener, len(p.listeners))
	copy(listeners, p.listeners)
	p.listenerLock.RUnlock()
	for _, listener := range listeners {
		l := listener
		_ = gosync.Safe("process listener", func() { f(l) })
	}
}

// AddThread 添加线程，同一个id的线程已经存在时返回错误
func (p *ProcessManager) AddThread(thread *Thread) error {
	p.lock.Lock()
	for _, t := range p.threads {
		if t.ID() == thread.ID() {
			p.lock.Unlock()
			return fmt.Errorf("thread %d already exists", thread.ID())
		}
	}
	p.threads = append(p.threads, thread)
	p.lock.Unlock()
	p.notify(func(l Listener) { l.AddedThread(thread) })
	return nil
}

// RemoveThread 删除线程，如果是活动线程，同时清空活动线程
func (p *ProcessManager) RemoveThread(tid uint64) error {
	p.lock.Lock()
	var removed *Thread
	for i, t := range p.threads {
		if t.ID() == tid {
			removed = t
			p.threads = append(p.threads[:i:i], p.threads[i+1:]...)
			break
		}
	}
	if removed == nil {
		p.lock.Unlock()
		return fmt.Errorf("%w: %d", e.ErrThreadNotFound, tid)
	}
	wasActive := p.activeThread == removed
	if wasActive {
		p.activeThread = nil
	}
	p.lock.Unlock()
	if wasActive {
		p.notify(func(l Listener) { l.ChangedActiveThread(removed, nil) })
	}
	p.notify(func(l Listener) { l.RemovedThread(removed) })
	return nil
}

// GetThread 根据id查找线程
func (p *ProcessManager) GetThread(tid uint64) (*Thread, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	for _, t := range p.threads {
		if t.ID() == tid {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", e.ErrThreadNotFound, tid)
}

func (p *ProcessManager) GetThreads() []*Thread {
	p.lock.RLock()
	defer p.lock.RUnlock()
	threads := make([]*Thread, len(p.threads))
	copy(threads, p.threads)
	return threads
}

func (p *ProcessManager) GetThreadCount() int {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return len(p.threads)
}

// SetActiveThread 设置活动线程，nil表示没有活动线程
// 线程必须属于该进程
func (p *ProcessManager) SetActiveThread(thread *Thread) {
	p.lock.Lock()
	if thread != nil && !p.hasThread(thread) {
		p.lock.Unlock()
		panic(fmt.Sprintf("thread %d does not belong to the target process", thread.ID()))
	}
	old := p.activeThread
	if old == thread {
		p.lock.Unlock()
		return
	}
	p.activeThread = thread
	p.lock.Unlock()
	p.notify(func(l Listener) { l.ChangedActiveThread(old, thread) })
}

func (p *ProcessManager) hasThread(thread *Thread) bool {
	for _, t := range p.threads {
		if t == thread {
			return true
		}
	}
	return false
}

func (p *ProcessManager) GetActiveThread() *Thread {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.activeThread
}

// AddModule 添加模块，同一模块不能重复添加
func (p *ProcessManager) AddModule(module MemoryModule) error {
	p.lock.Lock()
	if _, ok := p.modules.Get(uint64(module.BaseAddress)); ok {
		p.lock.Unlock()
		return fmt.Errorf("%w: %s", e.ErrModuleAlreadyLoaded, module)
	}
	p.modules.Put(uint64(module.BaseAddress), module)
	p.lock.Unlock()
	p.notify(func(l Listener) { l.AddedModule(module) })
	return nil
}

// RemoveModule 删除模块
func (p *ProcessManager) RemoveModule(module MemoryModule) error {
	p.lock.Lock()
	value, ok := p.modules.Get(uint64(module.BaseAddress))
	if !ok || value.(MemoryModule) != module {
		p.lock.Unlock()
		return fmt.Errorf("%w: %s", e.ErrModuleNotFound, module)
	}
	p.modules.Remove(uint64(module.BaseAddress))
	p.lock.Unlock()
	p.notify(func(l Listener) { l.RemovedModule(module) })
	return nil
}

// RemoveNonExistingModule 只通知监听者，不修改模型
func (p *ProcessManager) RemoveNonExistingModule(module MemoryModule) {
	p.notify(func(l Listener) { l.RemovedNonExistingModule(module) })
}

// HasModule 模块是否已经加载
func (p *ProcessManager) HasModule(module MemoryModule) bool {
	p.lock.RLock()
	defer p.lock.RUnlock()
	value, ok := p.modules.Get(uint64(module.BaseAddress))
	return ok && value.(MemoryModule) == module
}

// GetModule 查找包含该地址的模块
func (p *ProcessManager) GetModule(address RelocatedAddress) (MemoryModule, bool) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	key, value := p.modules.Floor(uint64(address))
	if key == nil {
		return MemoryModule{}, false
	}
	module := value.(MemoryModule)
	if !module.Contains(address) {
		return MemoryModule{}, false
	}
	return module, true
}

// GetModuleByName 根据名称查找模块，忽略大小写
func (p *ProcessManager) GetModuleByName(name string) (MemoryModule, bool) {
	for _, module := range p.GetModules() {
		if module.IsNamed(name) {
			return module, true
		}
	}
	return MemoryModule{}, false
}

// GetModules 按基址顺序返回所有模块
func (p *ProcessManager) GetModules() []MemoryModule {
	p.lock.RLock()
	defer p.lock.RUnlock()
	values := p.modules.Values()
	modules := make([]MemoryModule, 0, len(values))
	for _, value := range values {
		modules = append(modules, value.(MemoryModule))
	}
	return modules
}

func (p *ProcessManager) GetMemory() *Memory {
	return p.memory
}

func (p *ProcessManager) SetMemoryMap(memoryMap MemoryMap) {
	p.lock.Lock()
	p.memoryMap = memoryMap
	p.lock.Unlock()
	p.notify(func(l Listener) { l.ChangedMemoryMap(memoryMap) })
}

func (p *ProcessManager) GetMemoryMap() MemoryMap {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.memoryMap
}

func (p *ProcessManager) SetAttached(attached bool) {
	p.lock.Lock()
	changed := p.attached != attached
	p.attached = attached
	p.lock.Unlock()
	if changed {
		p.notify(func(l Listener) { l.ChangedAttached(attached) })
	}
}

func (p *ProcessManager) IsAttached() bool {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.attached
}

func (p *ProcessManager) SetTargetInformation(info *TargetInformation) {
	p.lock.Lock()
	p.targetInfo = info
	p.lock.Unlock()
	p.notify(func(l Listener) { l.ChangedTargetInformation(info) })
}

// GetTargetInformation 还没有收到目标信息时返回nil
func (p *ProcessManager) GetTargetInformation() *TargetInformation {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.targetInfo
}

// AddException 记录一个等待处理的异常
func (p *ProcessManager) AddException(exception DebuggerException) {
	p.lock.Lock()
	p.exceptions = append(p.exceptions, exception)
	p.lock.Unlock()
	p.notify(func(l Listener) { l.RaisedException(exception) })
}

// GetExceptions 返回所有等待处理的异常
func (p *ProcessManager) GetExceptions() []DebuggerException {
	p.lock.RLock()
	defer p.lock.RUnlock()
	exceptions := make([]DebuggerException, len(p.exceptions))
	copy(exceptions, p.exceptions)
	return exceptions
}

// ClearExceptions 恢复执行以后异常不再等待处理
func (p *ProcessManager) ClearExceptions() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.exceptions = nil
}
