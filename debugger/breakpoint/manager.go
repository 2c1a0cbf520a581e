package breakpoint

import (
	"fmt"
	"github.com/fansqz/remote-debugger/constants"
	. "github.com/fansqz/remote-debugger/debugger"
	"github.com/fansqz/remote-debugger/debugger/condition"
	e "github.com/fansqz/remote-debugger/error"
	"github.com/fansqz/remote-debugger/utils/gosync"
	"github.com/sirupsen/logrus"
	"sync"
)

// StatusFilter 根据断点当前的状态判断是否修改，在管理器的锁内调用
type StatusFilter func(old constants.BreakpointStatus) bool

// StatusIn 当前状态属于statuses时返回true
func StatusIn(statuses ...constants.BreakpointStatus) StatusFilter {
	return func(old constants.BreakpointStatus) bool {
		for _, status := range statuses {
			if old == status {
				return true
			}
		}
		return false
	}
}

// StatusChange 一个断点的状态变化
type StatusChange struct {
	Breakpoint Breakpoint
	Old        constants.BreakpointStatus
	New        constants.BreakpointStatus
}

// Listener 断点变化的监听者
// 每一次批量操作只会产生一次通知，通知在修改提交以后按提交顺序依次发出
type Listener interface {
	// BreakpointsAdded 新增断点
	BreakpointsAdded(typ constants.BreakpointType, breakpoints []Breakpoint)
	// BreakpointsRemoved 删除断点，passive为true表示目标进程中已经不存在该断点，不需要再发送命令
	BreakpointsRemoved(typ constants.BreakpointType, breakpoints []Breakpoint, passive bool)
	// BreakpointsStatusChanged 断点状态变化
	BreakpointsStatusChanged(typ constants.BreakpointType, changes []StatusChange)
	// BreakpointsConditionChanged 断点条件变化
	BreakpointsConditionChanged(typ constants.BreakpointType, breakpoints []Breakpoint)
}

// ListenerAdapter 空实现，嵌入以后只需要实现关心的方法
type ListenerAdapter struct{}

func (ListenerAdapter) BreakpointsAdded(constants.BreakpointType, []Breakpoint)            {}
func (ListenerAdapter) BreakpointsRemoved(constants.BreakpointType, []Breakpoint, bool)    {}
func (ListenerAdapter) BreakpointsStatusChanged(constants.BreakpointType, []StatusChange)  {}
func (ListenerAdapter) BreakpointsConditionChanged(constants.BreakpointType, []Breakpoint) {}

// BreakpointManager 管理所有的断点
// 一次调试会话创建一个，断点在多次连接之间保留
type BreakpointManager struct {
	mutex    sync.Mutex
	storages map[constants.BreakpointType]*storage

	listenerLock sync.RWMutex
	listeners    []Listener

	// 待发送的通知，只有一个goroutine负责发送
	pending     []func(Listener)
	dispatching bool
}

func NewBreakpointManager() *BreakpointManager {
	m := &BreakpointManager{
		storages: make(map[constants.BreakpointType]*storage, len(constants.BreakpointTypes)),
	}
	for _, typ := range constants.BreakpointTypes {
		m.storages[typ] = newStorage()
	}
	return m
}

func (m *BreakpointManager) AddListener(listener Listener) {
	m.listenerLock.Lock()
	defer m.listenerLock.Unlock()
	m.listeners = append(m.listeners, listener)
}

func (m *BreakpointManager) RemoveListener(listener Listener) {
	m.listenerLock.Lock()
	defer m.listenerLock.Unlock()
	for i, l := range m.listeners {
		if l == listener {
			m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
			return
		}
	}
}

// mutate 在锁内执行修改，修改产生的通知在锁外按顺序发送
// 监听者中再次修改断点时，新的通知会排在当前通知之后
func (m *BreakpointManager) mutate(f func() []func(Listener)) {
	m.mutex.Lock()
	func() {
		defer func() {
			if r := recover(); r != nil {
				m.mutex.Unlock()
				panic(r)
			}
		}()
		m.pending = append(m.pending, f()...)
	}()
	if m.dispatching {
		m.mutex.Unlock()
		return
	}
	m.dispatching = true
	for len(m.pending) > 0 {
		notification := m.pending[0]
		m.pending = m.pending[1:]
		m.mutex.Unlock()
		m.notify(notification)
		m.mutex.Lock()
	}
	m.dispatching = false
	m.mutex.Unlock()
}

func (m *BreakpointManager) notify(notification func(Listener)) {
	m.listenerLock.RLock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.listenerLock.RUnlock()
	for _, listener := range listeners {
		l := listener
		_ = gosync.Safe("breakpoint listener", func() { notification(l) })
	}
}

func (m *BreakpointManager) storage(typ constants.BreakpointType) *storage {
	s, ok := m.storages[typ]
	if !ok {
		panic(fmt.Sprintf("unknown breakpoint type %s", typ))
	}
	return s
}

// initialStatus 回显断点创建以后直接是enabled，其他断点是inactive
func initialStatus(typ constants.BreakpointType) constants.BreakpointStatus {
	if typ == constants.BreakpointEcho {
		return constants.BreakpointEnabled
	}
	return constants.BreakpointInactive
}

// AddBreakpoints 添加断点，返回真正添加的断点
// 断点类型有优先级：普通断点会替换同一地址的单步断点和回显断点，
// 单步断点会替换回显断点，同一地址已经有更高优先级的断点时跳过
func (m *BreakpointManager) AddBreakpoints(typ constants.BreakpointType, addresses []BreakpointAddress) []Breakpoint {
	var added []Breakpoint
	m.mutate(func() []func(Listener) {
		var notifications []func(Listener)
		var displaced []constants.BreakpointType
		switch typ {
		case constants.BreakpointRegular:
			displaced = []constants.BreakpointType{constants.BreakpointStep, constants.BreakpointEcho}
		case constants.BreakpointStep:
			displaced = []constants.BreakpointType{constants.BreakpointEcho}
		}
		target := m.storage(typ)
		var accepted []BreakpointAddress
		seen := map[BreakpointAddress]struct{}{}
		for _, address := range addresses {
			if _, ok := seen[address]; ok || target.has(address) || m.shadowed(typ, address) {
				continue
			}
			seen[address] = struct{}{}
			accepted = append(accepted, address)
		}
		for _, other := range displaced {
			var removed []Breakpoint
			for _, address := range accepted {
				if old, ok := m.storage(other).remove(address); ok {
					removed = append(removed, old.breakpoint)
				}
			}
			if len(removed) > 0 {
				otherType := other
				notifications = append(notifications, func(l Listener) { l.BreakpointsRemoved(otherType, removed, false) })
			}
		}
		for _, address := range accepted {
			bp := NewBreakpoint(typ, address)
			target.put(&entry{breakpoint: *bp, status: initialStatus(typ)})
			added = append(added, *bp)
		}
		if len(added) > 0 {
			notifications = append(notifications, func(l Listener) { l.BreakpointsAdded(typ, added) })
		}
		return notifications
	})
	return added
}

// shadowed 同一地址存在更高优先级的断点
func (m *BreakpointManager) shadowed(typ constants.BreakpointType, address BreakpointAddress) bool {
	switch typ {
	case constants.BreakpointEcho:
		return m.storage(constants.BreakpointStep).has(address) || m.storage(constants.BreakpointRegular).has(address)
	case constants.BreakpointStep:
		return m.storage(constants.BreakpointRegular).has(address)
	}
	return false
}

// RemoveBreakpoints 删除断点，监听者会将删除同步到目标进程
func (m *BreakpointManager) RemoveBreakpoints(typ constants.BreakpointType, addresses []BreakpointAddress) {
	m.remove(typ, addresses, false, nil)
}

// RemoveBreakpointsPassive 删除目标进程中已经不存在的断点
func (m *BreakpointManager) RemoveBreakpointsPassive(typ constants.BreakpointType, addresses []BreakpointAddress) {
	m.remove(typ, addresses, true, nil)
}

// RemoveBreakpointsPassiveIf 只删除当前状态满足filter的断点，返回被删除的地址
func (m *BreakpointManager) RemoveBreakpointsPassiveIf(typ constants.BreakpointType, filter StatusFilter, addresses []BreakpointAddress) []BreakpointAddress {
	return m.remove(typ, addresses, true, filter)
}

func (m *BreakpointManager) remove(typ constants.BreakpointType, addresses []BreakpointAddress, passive bool, filter StatusFilter) []BreakpointAddress {
	var result []BreakpointAddress
	m.mutate(func() []func(Listener) {
		var removed []Breakpoint
		s := m.storage(typ)
		for _, address := range addresses {
			if filter != nil {
				if en, ok := s.get(address); ok && !filter(en.status) {
					continue
				}
			}
			if old, ok := s.remove(address); ok {
				removed = append(removed, old.breakpoint)
				result = append(result, address)
			} else {
				logrus.Debugf("[BreakpointManager] remove unknown %s breakpoint %s", typ, address)
			}
		}
		if len(removed) == 0 {
			return nil
		}
		return []func(Listener){func(l Listener) { l.BreakpointsRemoved(typ, removed, passive) }}
	})
	return result
}

// ClearBreakpointsPassive 清空某一类型的断点，不会发送命令
func (m *BreakpointManager) ClearBreakpointsPassive(typ constants.BreakpointType) {
	m.mutate(func() []func(Listener) {
		var removed []Breakpoint
		for _, old := range m.storage(typ).clear() {
			removed = append(removed, old.breakpoint)
		}
		if len(removed) == 0 {
			return nil
		}
		return []func(Listener){func(l Listener) { l.BreakpointsRemoved(typ, removed, true) }}
	})
}

// SetBreakpointStatus 批量修改断点状态，只通知状态真正变化的断点
func (m *BreakpointManager) SetBreakpointStatus(typ constants.BreakpointType, status constants.BreakpointStatus, addresses ...BreakpointAddress) {
	m.SetBreakpointStatusIf(typ, status, nil, addresses...)
}

// SetBreakpointStatusIf 只修改当前状态满足filter的断点，返回满足条件的地址
// 状态的检查和修改在同一次加锁中完成，filter为nil时不检查
func (m *BreakpointManager) SetBreakpointStatusIf(typ constants.BreakpointType, status constants.BreakpointStatus,
	filter StatusFilter, addresses ...BreakpointAddress) []BreakpointAddress {
	var matched []BreakpointAddress
	m.mutate(func() []func(Listener) {
		var changes []StatusChange
		s := m.storage(typ)
		for _, address := range addresses {
			en, ok := s.get(address)
			if !ok {
				logrus.Debugf("[BreakpointManager] set status of unknown %s breakpoint %s", typ, address)
				continue
			}
			if filter != nil && !filter(en.status) {
				continue
			}
			matched = append(matched, address)
			if en.status == status {
				continue
			}
			changes = append(changes, StatusChange{Breakpoint: en.breakpoint, Old: en.status, New: status})
			en.status = status
		}
		if len(changes) == 0 {
			return nil
		}
		return []func(Listener){func(l Listener) { l.BreakpointsStatusChanged(typ, changes) }}
	})
	return matched
}

// SetBreakpointCondition 设置普通断点的条件，空字符串表示清除条件
func (m *BreakpointManager) SetBreakpointCondition(address BreakpointAddress, text string) error {
	if text != "" {
		c, err := condition.Parse(text)
		if err != nil {
			return err
		}
		text = c.String()
	}
	var err error
	m.mutate(func() []func(Listener) {
		en, ok := m.storage(constants.BreakpointRegular).get(address)
		if !ok {
			err = fmt.Errorf("%w: %s", e.ErrBreakpointNotFound, address)
			return nil
		}
		if en.breakpoint.Condition == text {
			return nil
		}
		en.breakpoint.Condition = text
		changed := []Breakpoint{en.breakpoint}
		return []func(Listener){func(l Listener) { l.BreakpointsConditionChanged(constants.BreakpointRegular, changed) }}
	})
	return err
}

// GetBreakpoint 获取断点的副本
func (m *BreakpointManager) GetBreakpoint(typ constants.BreakpointType, address BreakpointAddress) (Breakpoint, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	en, ok := m.storage(typ).get(address)
	if !ok {
		return Breakpoint{}, false
	}
	return en.breakpoint, true
}

// GetBreakpointStatus 获取断点状态
func (m *BreakpointManager) GetBreakpointStatus(typ constants.BreakpointType, address BreakpointAddress) (constants.BreakpointStatus, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	en, ok := m.storage(typ).get(address)
	if !ok {
		return "", false
	}
	return en.status, true
}

func (m *BreakpointManager) HasBreakpoint(typ constants.BreakpointType, address BreakpointAddress) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.storage(typ).has(address)
}

// GetBreakpoints 按添加顺序返回某一类型的全部断点
func (m *BreakpointManager) GetBreakpoints(typ constants.BreakpointType) []Breakpoint {
	return m.GetBreakpointsByStatus(typ)
}

// GetBreakpointsByStatus 返回处于给定状态的断点，不传状态时返回全部
func (m *BreakpointManager) GetBreakpointsByStatus(typ constants.BreakpointType, statuses ...constants.BreakpointStatus) []Breakpoint {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	var result []Breakpoint
	for _, en := range m.storage(typ).all() {
		if len(statuses) == 0 || containsStatus(statuses, en.status) {
			result = append(result, en.breakpoint)
		}
	}
	return result
}

func (m *BreakpointManager) GetNumberOfBreakpoints(typ constants.BreakpointType) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.storage(typ).size()
}

func containsStatus(statuses []constants.BreakpointStatus, status constants.BreakpointStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
