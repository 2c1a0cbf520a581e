package synchronizer

import (
	"github.com/fansqz/remote-debugger/constants"
	. "github.com/fansqz/remote-debugger/debugger"
	"github.com/fansqz/remote-debugger/debugger/process"
	"github.com/fansqz/remote-debugger/protocol"
	"github.com/sirupsen/logrus"
)

// resumed 目标进程继续执行，命中的断点恢复为active
func (s *DebuggerSynchronizer) resumed(*protocol.ResumeReply) {
	hit := s.breakpointManager.GetBreakpointsByStatus(constants.BreakpointRegular, constants.BreakpointHit)
	s.breakpointManager.SetBreakpointStatus(constants.BreakpointRegular, constants.BreakpointActive, addressesOf(hit)...)
	s.processManager.SetActiveThread(nil)
	s.processManager.ClearExceptions()
	s.setAllThreadStates(constants.ThreadRunning)
}

func (s *DebuggerSynchronizer) singleStepped(reply *protocol.SingleStepReply) {
	s.setRegisterValues(reply.Registers)
	registers, ok := FindThreadRegisters(reply.Registers, reply.ThreadID)
	if !ok {
		logrus.Debugf("[DebuggerSynchronizer] single step reply has no registers of thread %d", reply.ThreadID)
		s.activateThread(reply.ThreadID)
		return
	}
	if pc, ok := registers.ProgramCounter(); ok {
		s.updateHitBreakpoints(s.resolveBreakpointAddress(constants.BreakpointRegular, pc))
	}
	s.activateThread(reply.ThreadID)
}

func (s *DebuggerSynchronizer) halted(*protocol.HaltReply) {
	s.setAllThreadStates(constants.ThreadSuspended)
	s.refreshRegisters()
}

// findThread 查找消息中的线程，找不到时只记录日志
func (s *DebuggerSynchronizer) findThread(tid uint64) *process.Thread {
	thread, err := s.processManager.GetThread(tid)
	if err != nil {
		logrus.Debugf("[DebuggerSynchronizer] find thread fail, err = %v", err)
		return nil
	}
	return thread
}

func (s *DebuggerSynchronizer) threadResumed(reply *protocol.ResumeThreadReply) {
	if thread := s.findThread(reply.ThreadID); thread != nil {
		thread.SetState(constants.ThreadRunning)
	}
}

// threadResumeFailed 线程没有继续执行，认为线程仍然暂停
func (s *DebuggerSynchronizer) threadResumeFailed(reply *protocol.ResumeThreadReply) {
	logThreadCommandFailure("resume", reply.ThreadID, reply.ErrorCode)
	if thread := s.findThread(reply.ThreadID); thread != nil {
		thread.SetState(constants.ThreadSuspended)
	}
}

func (s *DebuggerSynchronizer) threadSuspended(reply *protocol.SuspendThreadReply) {
	if thread := s.findThread(reply.ThreadID); thread != nil {
		thread.SetState(constants.ThreadSuspended)
	}
}

// threadSuspendFailed 线程没有暂停，认为线程仍然在运行
func (s *DebuggerSynchronizer) threadSuspendFailed(reply *protocol.SuspendThreadReply) {
	logThreadCommandFailure("suspend", reply.ThreadID, reply.ErrorCode)
	if thread := s.findThread(reply.ThreadID); thread != nil {
		thread.SetState(constants.ThreadRunning)
	}
}

// logThreadCommandFailure 线程已经退出是正常情况，只记录debug日志
func logThreadCommandFailure(command string, tid uint64, errorCode uint32) {
	if errorCode == constants.ErrorCodeThreadNotFound {
		logrus.Debugf("[DebuggerSynchronizer] %s thread %d fail, thread not found", command, tid)
		return
	}
	logrus.Warnf("[DebuggerSynchronizer] %s thread %d fail, errorCode = %d", command, tid, errorCode)
}

func (s *DebuggerSynchronizer) registersReceived(reply *protocol.RegistersReply) {
	s.setRegisterValues(reply.Registers)
	if s.processManager.GetActiveThread() != nil {
		return
	}
	for _, value := range reply.Registers {
		thread, err := s.processManager.GetThread(value.ThreadID)
		if err != nil {
			continue
		}
		s.processManager.SetActiveThread(thread)
		return
	}
}

func (s *DebuggerSynchronizer) memoryRead(reply *protocol.ReadMemoryReply) {
	s.processManager.GetMemory().Store(reply.Address, reply.Data)
}

func (s *DebuggerSynchronizer) memoryMapReceived(reply *protocol.MemoryMapReply) {
	s.processManager.SetMemoryMap(reply.MemoryMap)
}
