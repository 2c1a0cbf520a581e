package synchronizer

import (
	"fmt"
	"github.com/fansqz/remote-debugger/constants"
	. "github.com/fansqz/remote-debugger/debugger"
	"github.com/fansqz/remote-debugger/debugger/breakpoint"
	"github.com/fansqz/remote-debugger/protocol"
	"github.com/fansqz/remote-debugger/utils"
	"github.com/sirupsen/logrus"
)

// 设置成功的断点不会覆盖这些状态
// 禁用和正在删除的断点等待删除命令的结果，命中的断点已经是激活的
var keepOnSetSuccess = utils.List2set([]constants.BreakpointStatus{
	constants.BreakpointDisabled,
	constants.BreakpointDeleting,
	constants.BreakpointHit,
})

// applySetResults 根据每个地址的结果更新断点状态，返回设置成功的断点
// 状态在管理器的锁内检查，应答处理期间被禁用的断点不会被激活
func (s *DebuggerSynchronizer) applySetResults(typ constants.BreakpointType, results []protocol.AddressResult) []BreakpointAddress {
	var succeeded, invalid []BreakpointAddress
	for _, result := range results {
		address := s.resolveBreakpointAddress(typ, result.Address)
		if result.ErrorCode != constants.ErrorCodeSuccess {
			invalid = append(invalid, address)
			continue
		}
		succeeded = append(succeeded, address)
	}
	activated := s.breakpointManager.SetBreakpointStatusIf(typ, constants.BreakpointActive, func(old constants.BreakpointStatus) bool {
		return !keepOnSetSuccess.Contains(old)
	}, succeeded...)
	s.breakpointManager.SetBreakpointStatus(typ, constants.BreakpointInvalid, invalid...)
	return activated
}

// applyRemoveResults 删除成功的断点从本地删除，删除失败的断点标记为invalid
// onlyDeleting为true时只删除处于deleting状态的断点，禁用的断点保留在本地
func (s *DebuggerSynchronizer) applyRemoveResults(typ constants.BreakpointType, results []protocol.AddressResult, onlyDeleting bool) {
	var removed, invalid []BreakpointAddress
	for _, result := range results {
		address := s.resolveBreakpointAddress(typ, result.Address)
		if result.ErrorCode != constants.ErrorCodeSuccess {
			invalid = append(invalid, address)
			continue
		}
		removed = append(removed, address)
	}
	var filter breakpoint.StatusFilter
	if onlyDeleting {
		filter = breakpoint.StatusIn(constants.BreakpointDeleting)
	}
	s.breakpointManager.RemoveBreakpointsPassiveIf(typ, filter, removed)
	s.breakpointManager.SetBreakpointStatus(typ, constants.BreakpointInvalid, invalid...)
}

func (s *DebuggerSynchronizer) breakpointsSet(reply *protocol.BreakpointSetReply) {
	activated := s.applySetResults(constants.BreakpointRegular, reply.Addresses)
	// 目标进程正停在刚设置的断点上
	thread := s.processManager.GetActiveThread()
	if thread == nil || len(activated) == 0 {
		return
	}
	current := s.resolveBreakpointAddress(constants.BreakpointRegular, thread.CurrentAddress())
	for _, address := range activated {
		if address == current {
			s.updateHitBreakpoints(current)
			return
		}
	}
}

func (s *DebuggerSynchronizer) breakpointsRemoved(reply *protocol.BreakpointRemovedReply) {
	s.applyRemoveResults(constants.BreakpointRegular, reply.Addresses, true)
}

func (s *DebuggerSynchronizer) echoBreakpointsSet(reply *protocol.EchoBreakpointSetReply) {
	s.applySetResults(constants.BreakpointEcho, reply.Addresses)
}

func (s *DebuggerSynchronizer) echoBreakpointsRemoved(reply *protocol.EchoBreakpointRemovedReply) {
	s.applyRemoveResults(constants.BreakpointEcho, reply.Addresses, false)
}

func (s *DebuggerSynchronizer) stepBreakpointsSet(reply *protocol.StepBreakpointSetReply) {
	s.applySetResults(constants.BreakpointStep, reply.Addresses)
}

func (s *DebuggerSynchronizer) stepBreakpointsRemoved(reply *protocol.StepBreakpointRemovedReply) {
	s.applyRemoveResults(constants.BreakpointStep, reply.Addresses, false)
}

// programCounter 从寄存器中取出线程的PC，命中断点的消息必须包含PC
func programCounter(tag constants.ReplyTag, tid uint64, values []ThreadRegisters) RelocatedAddress {
	registers, ok := FindThreadRegisters(values, tid)
	if ok {
		if pc, ok := registers.ProgramCounter(); ok {
			return pc
		}
	}
	panic(fmt.Sprintf("%s reply of thread %d has no program counter", tag, tid))
}

// stopped 目标进程在某个线程上暂停
func (s *DebuggerSynchronizer) stopped(tid uint64, pc RelocatedAddress, values []ThreadRegisters) {
	s.updateHitBreakpoints(s.resolveBreakpointAddress(constants.BreakpointRegular, pc))
	s.setRegisterValues(values)
	s.setAllThreadStates(constants.ThreadSuspended)
	s.activateThread(tid)
}

func (s *DebuggerSynchronizer) breakpointHit(reply *protocol.BreakpointHitReply) {
	pc := programCounter(reply.Tag(), reply.ThreadID, reply.Registers)
	s.stopped(reply.ThreadID, pc, reply.Registers)
}

func (s *DebuggerSynchronizer) echoBreakpointHit(reply *protocol.EchoBreakpointHitReply) {
	s.setRegisterValues(reply.Registers)
}

func (s *DebuggerSynchronizer) stepBreakpointHit(reply *protocol.StepBreakpointHitReply) {
	pc := programCounter(reply.Tag(), reply.ThreadID, reply.Registers)
	s.breakpointManager.ClearBreakpointsPassive(constants.BreakpointStep)
	s.stopped(reply.ThreadID, pc, reply.Registers)
}

func (s *DebuggerSynchronizer) breakpointConditionFailed(reply *protocol.BreakpointConditionSetReply) {
	logrus.Warnf("[DebuggerSynchronizer] set condition of breakpoint at %s fail, errorCode = %d",
		reply.Address, reply.ErrorCode)
}
