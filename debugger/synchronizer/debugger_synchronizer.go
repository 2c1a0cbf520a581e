package synchronizer

import (
	"context"
	"fmt"
	"github.com/fansqz/remote-debugger/constants"
	. "github.com/fansqz/remote-debugger/debugger"
	"github.com/fansqz/remote-debugger/debugger/breakpoint"
	"github.com/fansqz/remote-debugger/debugger/process"
	"github.com/fansqz/remote-debugger/protocol"
	"github.com/sirupsen/logrus"
)

// Option 同步器的配置
type Option struct {
	// SuppressModuleLoadStop 即使目标策略要求在模块加载时暂停，也继续执行
	SuppressModuleLoadStop bool
}

// DebuggerSynchronizer 将agent的消息同步到本地模型
// ReceivedReply 只能在一个goroutine中按消息到达顺序调用
type DebuggerSynchronizer struct {
	ctx               context.Context
	option            Option
	debugger          Debugger
	breakpointManager *breakpoint.BreakpointManager
	processManager    *process.ProcessManager
	listeners         listenerProvider

	breakpointSynchronizer *BreakpointSynchronizer
	threadSynchronizer     *ThreadStateSynchronizer
}

// NewDebuggerSynchronizer 创建同步器，同时开始将本地断点和线程状态的修改同步到agent
// 不再使用时需要调用Dispose
func NewDebuggerSynchronizer(ctx context.Context, d Debugger, bm *breakpoint.BreakpointManager,
	pm *process.ProcessManager, option Option) *DebuggerSynchronizer {
	s := &DebuggerSynchronizer{
		ctx:               ctx,
		option:            option,
		debugger:          d,
		breakpointManager: bm,
		processManager:    pm,
	}
	s.breakpointSynchronizer = newBreakpointSynchronizer(ctx, d, bm, pm, s.issueDebugException)
	s.threadSynchronizer = newThreadStateSynchronizer(ctx, d, pm, s.issueDebugException)
	return s
}

// Dispose 停止将本地修改同步到agent
func (s *DebuggerSynchronizer) Dispose() {
	s.breakpointSynchronizer.dispose()
	s.threadSynchronizer.dispose()
}

func (s *DebuggerSynchronizer) AddListener(listener Listener) {
	s.listeners.add(listener)
}

func (s *DebuggerSynchronizer) RemoveListener(listener Listener) {
	s.listeners.remove(listener)
}

// ReceivedReply 根据消息类型交给对应的处理函数
func (s *DebuggerSynchronizer) ReceivedReply(reply protocol.Reply) {
	switch r := reply.(type) {
	case *protocol.AttachReply:
		handle(s, r, s.attachSucceeded, nil)
	case *protocol.DetachReply:
		handle(s, r, s.detachSucceeded, nil)
	case *protocol.TerminateReply:
		handle(s, r, s.terminateSucceeded, nil)
	case *protocol.ProcessStartReply:
		handle(s, r, s.processStarted, nil)
	case *protocol.ProcessClosedReply:
		handle(s, r, s.processClosed, nil)
	case *protocol.ConnectionClosedReply:
		handle(s, r, s.connectionClosed, s.connectionClosed)
		s.listeners.notify(func(l Listener) { l.DebuggerClosed(r.ErrorCode) })
	case *protocol.TargetInformationReply:
		handle(s, r, s.targetInformationReceived, nil)
	case *protocol.BreakpointSetReply:
		handle(s, r, s.breakpointsSet, s.breakpointsSet)
	case *protocol.BreakpointRemovedReply:
		handle(s, r, s.breakpointsRemoved, s.breakpointsRemoved)
	case *protocol.BreakpointHitReply:
		handle(s, r, s.breakpointHit, nil)
	case *protocol.EchoBreakpointSetReply:
		handle(s, r, s.echoBreakpointsSet, s.echoBreakpointsSet)
	case *protocol.EchoBreakpointRemovedReply:
		handle(s, r, s.echoBreakpointsRemoved, s.echoBreakpointsRemoved)
	case *protocol.EchoBreakpointHitReply:
		handle(s, r, s.echoBreakpointHit, nil)
	case *protocol.StepBreakpointSetReply:
		handle(s, r, s.stepBreakpointsSet, s.stepBreakpointsSet)
	case *protocol.StepBreakpointRemovedReply:
		handle(s, r, s.stepBreakpointsRemoved, s.stepBreakpointsRemoved)
	case *protocol.StepBreakpointHitReply:
		handle(s, r, s.stepBreakpointHit, nil)
	case *protocol.BreakpointConditionSetReply:
		handle(s, r, nil, s.breakpointConditionFailed)
	case *protocol.ResumeReply:
		handle(s, r, s.resumed, nil)
	case *protocol.SingleStepReply:
		handle(s, r, s.singleStepped, nil)
	case *protocol.HaltReply:
		handle(s, r, s.halted, nil)
	case *protocol.ResumeThreadReply:
		handle(s, r, s.threadResumed, s.threadResumeFailed)
	case *protocol.SuspendThreadReply:
		handle(s, r, s.threadSuspended, s.threadSuspendFailed)
	case *protocol.RegistersReply:
		handle(s, r, s.registersReceived, nil)
	case *protocol.ReadMemoryReply:
		handle(s, r, s.memoryRead, nil)
	case *protocol.MemoryMapReply:
		handle(s, r, s.memoryMapReceived, nil)
	case *protocol.ModuleLoadedReply:
		handle(s, r, s.moduleLoaded, nil)
	case *protocol.ModuleUnloadedReply:
		handle(s, r, s.moduleUnloaded, nil)
	case *protocol.ThreadCreatedReply:
		handle(s, r, s.threadCreated, nil)
	case *protocol.ThreadClosedReply:
		handle(s, r, s.threadClosed, nil)
	case *protocol.ExceptionOccurredReply:
		handle(s, r, s.exceptionOccurred, nil)
	default:
		panic(fmt.Sprintf("unknown reply %T", reply))
	}
}

// handle 所有消息的处理流程：先根据是否成功更新本地模型，再通知监听者
func handle[T protocol.Reply](s *DebuggerSynchronizer, reply T, onSuccess, onError func(T)) {
	if reply.Success() {
		if onSuccess != nil {
			onSuccess(reply)
		}
	} else if onError != nil {
		onError(reply)
	} else {
		logrus.Debugf("[DebuggerSynchronizer] %s failed, errorCode = %d", reply.Tag(), reply.Header().ErrorCode)
	}
	for _, err := range s.listeners.notify(func(l Listener) { l.ReceivedReply(reply) }) {
		logrus.Errorf("[DebuggerSynchronizer] notify %s fail, err = %v", reply.Tag(), err)
	}
}

// issueDebugException 命令发送失败时通知监听者
func (s *DebuggerSynchronizer) issueDebugException(err error) {
	logrus.Errorf("[DebuggerSynchronizer] debugger command fail, err = %v", err)
	s.listeners.notify(func(l Listener) { l.DebugException(err) })
}

// refreshRegisters 目标进程暂停以后重新读取寄存器
func (s *DebuggerSynchronizer) refreshRegisters() {
	if err := s.debugger.ReadRegisters(s.ctx); err != nil {
		s.issueDebugException(err)
	}
}

// resolveBreakpointAddress 将运行时地址还原为断点地址
// 优先使用已经存在的断点，保证模块名称与用户设置的一致
func (s *DebuggerSynchronizer) resolveBreakpointAddress(typ constants.BreakpointType, address RelocatedAddress) BreakpointAddress {
	modules := s.processManager.GetModules()
	for _, bp := range s.breakpointManager.GetBreakpoints(typ) {
		if s.debugger.FileToMemory(bp.Address) == address && IsBreakpointInsideModules(s.debugger, bp.Address, modules) {
			return bp.Address
		}
	}
	return s.debugger.MemoryToFile(address)
}

// updateHitBreakpoints 保证最多只有一个普通断点处于命中状态
// 其他命中的断点恢复为active，address处的断点变为命中
func (s *DebuggerSynchronizer) updateHitBreakpoints(address BreakpointAddress) {
	var demoted []BreakpointAddress
	for _, bp := range s.breakpointManager.GetBreakpointsByStatus(constants.BreakpointRegular, constants.BreakpointHit) {
		if bp.Address != address {
			demoted = append(demoted, bp.Address)
		}
	}
	s.breakpointManager.SetBreakpointStatusIf(constants.BreakpointRegular, constants.BreakpointActive,
		breakpoint.StatusIn(constants.BreakpointHit), demoted...)
	// 只有active和enabled的断点变为命中，其他状态保持不变
	s.breakpointManager.SetBreakpointStatusIf(constants.BreakpointRegular, constants.BreakpointHit,
		breakpoint.StatusIn(constants.BreakpointActive, constants.BreakpointEnabled), address)
}

// setRegisterValues 更新线程寄存器，找不到的线程忽略
func (s *DebuggerSynchronizer) setRegisterValues(values []ThreadRegisters) {
	for _, value := range values {
		thread, err := s.processManager.GetThread(value.ThreadID)
		if err != nil {
			logrus.Debugf("[DebuggerSynchronizer] set registers fail, err = %v", err)
			continue
		}
		thread.SetRegisters(value.Registers)
	}
}

// setAllThreadStates agent确认整个进程的执行状态
func (s *DebuggerSynchronizer) setAllThreadStates(state constants.ThreadState) {
	for _, thread := range s.processManager.GetThreads() {
		thread.SetState(state)
	}
}

// activateThread 将线程设置为活动线程，线程不存在时忽略
func (s *DebuggerSynchronizer) activateThread(tid uint64) {
	thread, err := s.processManager.GetThread(tid)
	if err != nil {
		logrus.Debugf("[DebuggerSynchronizer] activate thread fail, err = %v", err)
		return
	}
	s.processManager.SetActiveThread(thread)
}

// ResetTargetProcess 连接断开以后将本地模型恢复到未连接的状态，可以重复调用
func (s *DebuggerSynchronizer) ResetTargetProcess() {
	s.debugger.SetTerminated()

	s.breakpointManager.ClearBreakpointsPassive(constants.BreakpointEcho)
	s.breakpointManager.ClearBreakpointsPassive(constants.BreakpointStep)

	s.breakpointManager.RemoveBreakpointsPassiveIf(constants.BreakpointRegular,
		breakpoint.StatusIn(constants.BreakpointDeleting), addressesOf(s.breakpointManager.GetBreakpoints(constants.BreakpointRegular)))
	s.breakpointManager.SetBreakpointStatusIf(constants.BreakpointRegular, constants.BreakpointInactive,
		func(old constants.BreakpointStatus) bool {
			return old != constants.BreakpointDisabled && old != constants.BreakpointDeleting
		}, addressesOf(s.breakpointManager.GetBreakpoints(constants.BreakpointRegular))...)

	s.processManager.GetMemory().Clear()
	if len(s.processManager.GetMemoryMap().Sections) > 0 {
		s.processManager.SetMemoryMap(MemoryMap{})
	}
	s.processManager.SetActiveThread(nil)
	for _, thread := range s.processManager.GetThreads() {
		_ = s.processManager.RemoveThread(thread.ID())
	}
	for _, module := range s.processManager.GetModules() {
		_ = s.processManager.RemoveModule(module)
		s.debugger.RemoveAddressTranslator(module.Name)
	}
	s.processManager.ClearExceptions()
	s.processManager.SetAttached(false)
}
