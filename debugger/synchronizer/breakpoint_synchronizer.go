package synchronizer

import (
	"context"
	"fmt"
	"github.com/emirpasic/gods/sets/hashset"
	"github.com/fansqz/remote-debugger/constants"
	. "github.com/fansqz/remote-debugger/debugger"
	"github.com/fansqz/remote-debugger/debugger/breakpoint"
	"github.com/fansqz/remote-debugger/debugger/condition"
	"github.com/fansqz/remote-debugger/debugger/process"
	e "github.com/fansqz/remote-debugger/error"
	"github.com/sirupsen/logrus"
	"sync"
)

type breakpointKey struct {
	typ     constants.BreakpointType
	address BreakpointAddress
}

// BreakpointSynchronizer 将本地断点的变化转换为发给agent的命令
type BreakpointSynchronizer struct {
	ctx               context.Context
	debugger          Debugger
	breakpointManager *breakpoint.BreakpointManager
	processManager    *process.ProcessManager
	onError           func(error)

	// 由于设置失败而禁用的断点，不需要再发送移除命令
	lock   sync.Mutex
	failed *hashset.Set
}

func newBreakpointSynchronizer(ctx context.Context, d Debugger, bm *breakpoint.BreakpointManager,
	pm *process.ProcessManager, onError func(error)) *BreakpointSynchronizer {
	s := &BreakpointSynchronizer{
		ctx:               ctx,
		debugger:          d,
		breakpointManager: bm,
		processManager:    pm,
		onError:           onError,
		failed:            hashset.New(),
	}
	bm.AddListener(s)
	return s
}

func (s *BreakpointSynchronizer) dispose() {
	s.breakpointManager.RemoveListener(s)
}

func (s *BreakpointSynchronizer) BreakpointsAdded(typ constants.BreakpointType, breakpoints []Breakpoint) {
	addresses := addressesOf(breakpoints)
	switch typ {
	case constants.BreakpointRegular:
		if !s.debugger.IsConnected() {
			return
		}
		inside, _ := partitionByModules(s.debugger, addresses, s.processManager.GetModules())
		s.breakpointManager.SetBreakpointStatus(typ, constants.BreakpointEnabled, inside...)
	case constants.BreakpointEcho:
		addresses = s.enabledEchoBreakpoints(addresses)
		if len(addresses) == 0 {
			return
		}
		if !s.debugger.IsConnected() {
			logrus.Errorf("[BreakpointSynchronizer] echo breakpoints added while not connected")
			s.breakpointManager.SetBreakpointStatus(typ, constants.BreakpointInactive, addresses...)
			return
		}
		s.setBreakpoints(typ, addresses)
	case constants.BreakpointStep:
		if !s.debugger.IsConnected() {
			s.breakpointManager.RemoveBreakpointsPassive(typ, addresses)
			return
		}
		inside, _ := partitionByModules(s.debugger, addresses, s.processManager.GetModules())
		s.breakpointManager.SetBreakpointStatus(typ, constants.BreakpointEnabled, inside...)
	}
}

func (s *BreakpointSynchronizer) BreakpointsRemoved(typ constants.BreakpointType, breakpoints []Breakpoint, passive bool) {
	if passive || !s.debugger.IsConnected() {
		return
	}
	inside, _ := partitionByModules(s.debugger, addressesOf(breakpoints), s.processManager.GetModules())
	if len(inside) == 0 {
		return
	}
	if err := s.debugger.RemoveBreakpoints(s.ctx, inside, typ); err != nil {
		s.onError(err)
	}
}

func (s *BreakpointSynchronizer) BreakpointsStatusChanged(typ constants.BreakpointType, changes []breakpoint.StatusChange) {
	var enabled, deleting, passive, disabled []BreakpointAddress
	for _, change := range changes {
		address := change.Breakpoint.Address
		switch change.New {
		case constants.BreakpointEnabled:
			enabled = append(enabled, address)
		case constants.BreakpointDeleting:
			switch change.Old {
			case constants.BreakpointInvalid, constants.BreakpointDisabled, constants.BreakpointInactive:
				passive = append(passive, address)
			default:
				deleting = append(deleting, address)
			}
		case constants.BreakpointDisabled:
			if change.Old.IsLive() && !s.takeFailed(typ, address) {
				disabled = append(disabled, address)
			}
		}
	}
	s.breakpointManager.RemoveBreakpointsPassive(typ, passive)
	if len(enabled) > 0 {
		s.enableBreakpoints(typ, enabled)
	}
	if len(deleting) > 0 {
		if s.debugger.IsConnected() {
			s.removeBreakpoints(typ, deleting)
		} else {
			s.breakpointManager.RemoveBreakpointsPassive(typ, deleting)
		}
	}
	if len(disabled) > 0 && s.debugger.IsConnected() {
		s.removeBreakpoints(typ, disabled)
	}
}

func (s *BreakpointSynchronizer) BreakpointsConditionChanged(typ constants.BreakpointType, breakpoints []Breakpoint) {
	if typ != constants.BreakpointRegular || !s.debugger.IsConnected() {
		return
	}
	for _, bp := range breakpoints {
		status, ok := s.breakpointManager.GetBreakpointStatus(typ, bp.Address)
		if !ok || !status.IsLive() {
			continue
		}
		s.sendCondition(bp)
	}
}

// enabledEchoBreakpoints 新加入的回显断点必须是enabled，其他状态说明本地模型已经不一致
func (s *BreakpointSynchronizer) enabledEchoBreakpoints(addresses []BreakpointAddress) []BreakpointAddress {
	var result []BreakpointAddress
	for _, address := range addresses {
		status, ok := s.breakpointManager.GetBreakpointStatus(constants.BreakpointEcho, address)
		if !ok {
			continue
		}
		if status != constants.BreakpointEnabled {
			s.onError(fmt.Errorf("%w: echo breakpoint %s added with status %s", e.ErrInvalidBreakpointStatus, address, status))
			continue
		}
		result = append(result, address)
	}
	return result
}

// sendCondition 已知目标的寄存器时，条件中引用了不存在的寄存器不会发送
func (s *BreakpointSynchronizer) sendCondition(bp Breakpoint) {
	if bp.Condition != "" {
		if err := s.checkCondition(bp.Condition); err != nil {
			s.onError(fmt.Errorf("condition of breakpoint %s: %w", bp.Address, err))
			return
		}
	}
	if err := s.debugger.SetBreakpointCondition(s.ctx, bp.Address, bp.Condition); err != nil {
		s.onError(err)
	}
}

func (s *BreakpointSynchronizer) checkCondition(text string) error {
	info := s.processManager.GetTargetInformation()
	if info == nil || len(info.Registers) == 0 {
		return nil
	}
	c, err := condition.Parse(text)
	if err != nil {
		return err
	}
	known := make([]string, 0, len(info.Registers))
	for _, register := range info.Registers {
		known = append(known, register.Name)
	}
	return c.CheckRegisters(known)
}

// enableBreakpoints 断点变为enabled以后在目标进程中设置断点
func (s *BreakpointSynchronizer) enableBreakpoints(typ constants.BreakpointType, addresses []BreakpointAddress) {
	if !s.debugger.IsConnected() {
		if typ == constants.BreakpointStep {
			s.breakpointManager.RemoveBreakpointsPassive(typ, addresses)
		} else {
			s.breakpointManager.SetBreakpointStatus(typ, constants.BreakpointInactive, addresses...)
		}
		return
	}
	if !s.setBreakpoints(typ, addresses) || typ != constants.BreakpointRegular {
		return
	}
	for _, address := range addresses {
		bp, ok := s.breakpointManager.GetBreakpoint(typ, address)
		if !ok || bp.Condition == "" {
			continue
		}
		s.sendCondition(bp)
	}
}

// setBreakpoints 设置模块内的断点，模块外的断点变为inactive
func (s *BreakpointSynchronizer) setBreakpoints(typ constants.BreakpointType, addresses []BreakpointAddress) bool {
	inside, outside := partitionByModules(s.debugger, addresses, s.processManager.GetModules())
	s.breakpointManager.SetBreakpointStatus(typ, constants.BreakpointInactive, outside...)
	if len(inside) == 0 {
		return false
	}
	if err := s.debugger.SetBreakpoints(s.ctx, inside, typ); err != nil {
		s.markFailed(typ, inside)
		s.breakpointManager.SetBreakpointStatus(typ, constants.BreakpointDisabled, inside...)
		s.onError(err)
		return false
	}
	return true
}

// removeBreakpoints 发送移除命令，失败时删除中的断点直接删除，禁用的断点变为invalid
func (s *BreakpointSynchronizer) removeBreakpoints(typ constants.BreakpointType, addresses []BreakpointAddress) {
	err := s.debugger.RemoveBreakpoints(s.ctx, addresses, typ)
	if err == nil {
		return
	}
	s.breakpointManager.RemoveBreakpointsPassiveIf(typ, breakpoint.StatusIn(constants.BreakpointDeleting), addresses)
	s.breakpointManager.SetBreakpointStatusIf(typ, constants.BreakpointInvalid, breakpoint.StatusIn(constants.BreakpointDisabled), addresses...)
	s.onError(err)
}

func (s *BreakpointSynchronizer) markFailed(typ constants.BreakpointType, addresses []BreakpointAddress) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, address := range addresses {
		status, ok := s.breakpointManager.GetBreakpointStatus(typ, address)
		if ok && status != constants.BreakpointDisabled {
			s.failed.Add(breakpointKey{typ: typ, address: address})
		}
	}
}

func (s *BreakpointSynchronizer) takeFailed(typ constants.BreakpointType, address BreakpointAddress) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	key := breakpointKey{typ: typ, address: address}
	if !s.failed.Contains(key) {
		return false
	}
	s.failed.Remove(key)
	return true
}
