package synchronizer

import (
	"github.com/fansqz/remote-debugger/constants"
	. "github.com/fansqz/remote-debugger/debugger"
	"github.com/fansqz/remote-debugger/debugger/process"
	"github.com/fansqz/remote-debugger/protocol"
	"github.com/sirupsen/logrus"
)

func (s *DebuggerSynchronizer) attachSucceeded(*protocol.AttachReply) {
	s.processManager.SetAttached(true)
}

func (s *DebuggerSynchronizer) detachSucceeded(*protocol.DetachReply) {
	s.ResetTargetProcess()
}

func (s *DebuggerSynchronizer) terminateSucceeded(*protocol.TerminateReply) {
	s.ResetTargetProcess()
}

func (s *DebuggerSynchronizer) processClosed(*protocol.ProcessClosedReply) {
	s.ResetTargetProcess()
}

func (s *DebuggerSynchronizer) connectionClosed(reply *protocol.ConnectionClosedReply) {
	logrus.Infof("[DebuggerSynchronizer] connection closed, errorCode = %d", reply.ErrorCode)
	s.ResetTargetProcess()
}

func (s *DebuggerSynchronizer) targetInformationReceived(reply *protocol.TargetInformationReply) {
	info := reply.Information
	s.processManager.SetTargetInformation(&info)
}

// processStarted 目标进程启动时带有第一个线程和主模块，此时目标进程处于暂停状态
func (s *DebuggerSynchronizer) processStarted(reply *protocol.ProcessStartReply) {
	state := reply.Thread.State
	if state == "" {
		state = constants.ThreadSuspended
	}
	if err := s.processManager.AddThread(process.NewThread(reply.Thread.ThreadID, state)); err != nil {
		logrus.Warnf("[DebuggerSynchronizer] add thread fail, err = %v", err)
	}
	s.loadModule(reply.Module)
	s.processManager.SetAttached(true)
	s.activateThread(reply.Thread.ThreadID)
}

// loadModule 添加模块，并启用模块中的断点
func (s *DebuggerSynchronizer) loadModule(module MemoryModule) {
	if err := s.processManager.AddModule(module); err != nil {
		logrus.Warnf("[DebuggerSynchronizer] add module fail, err = %v", err)
	}
	s.debugger.SetAddressTranslator(module.Name, 0, module.BaseAddress)
	modules := []MemoryModule{module}
	for _, typ := range []constants.BreakpointType{constants.BreakpointRegular, constants.BreakpointEcho} {
		inactive := s.breakpointManager.GetBreakpointsByStatus(typ, constants.BreakpointInactive)
		inside, _ := partitionByModules(s.debugger, addressesOf(inactive), modules)
		s.breakpointManager.SetBreakpointStatus(typ, constants.BreakpointEnabled, inside...)
	}
}

func (s *DebuggerSynchronizer) moduleLoaded(reply *protocol.ModuleLoadedReply) {
	s.loadModule(reply.Module)
	if s.stopOnModuleLoad() {
		s.activateThread(reply.ThreadID)
		s.refreshRegisters()
		return
	}
	s.resume()
}

func (s *DebuggerSynchronizer) moduleUnloaded(reply *protocol.ModuleUnloadedReply) {
	module := reply.Module
	if !s.processManager.HasModule(module) {
		s.processManager.RemoveNonExistingModule(module)
	} else {
		modules := []MemoryModule{module}
		for _, typ := range []constants.BreakpointType{constants.BreakpointRegular, constants.BreakpointEcho} {
			var inactive, deleting []BreakpointAddress
			for _, bp := range s.breakpointManager.GetBreakpoints(typ) {
				if !IsBreakpointInsideModules(s.debugger, bp.Address, modules) || bp.Address.Module == "" {
					continue
				}
				status, _ := s.breakpointManager.GetBreakpointStatus(typ, bp.Address)
				switch status {
				case constants.BreakpointDeleting:
					deleting = append(deleting, bp.Address)
				case constants.BreakpointDisabled, constants.BreakpointInactive:
				default:
					inactive = append(inactive, bp.Address)
				}
			}
			s.breakpointManager.RemoveBreakpointsPassive(typ, deleting)
			s.breakpointManager.SetBreakpointStatus(typ, constants.BreakpointInactive, inactive...)
		}
		if err := s.processManager.RemoveModule(module); err != nil {
			logrus.Warnf("[DebuggerSynchronizer] remove module fail, err = %v", err)
		}
		s.debugger.RemoveAddressTranslator(module.Name)
	}
	if s.resumeOnModuleUnload() {
		s.resume()
	}
}

// stopOnModuleLoad 只有目标策略明确要求时才在模块加载时暂停
func (s *DebuggerSynchronizer) stopOnModuleLoad() bool {
	if s.option.SuppressModuleLoadStop {
		return false
	}
	info := s.processManager.GetTargetInformation()
	return info != nil && info.EventSettings != nil && info.EventSettings.BreakOnModuleLoad
}

// resumeOnModuleUnload agent支持在模块卸载时暂停，并且目标策略没有要求暂停时继续执行
func (s *DebuggerSynchronizer) resumeOnModuleUnload() bool {
	info := s.processManager.GetTargetInformation()
	if info == nil || !info.Options.CanBreakOnModuleUnload {
		return false
	}
	return info.EventSettings == nil || !info.EventSettings.BreakOnModuleUnload
}

func (s *DebuggerSynchronizer) resume() {
	if err := s.debugger.Resume(s.ctx); err != nil {
		s.issueDebugException(err)
	}
}

func (s *DebuggerSynchronizer) threadCreated(reply *protocol.ThreadCreatedReply) {
	state := reply.State
	if state == "" {
		state = constants.ThreadRunning
	}
	if err := s.processManager.AddThread(process.NewThread(reply.ThreadID, state)); err != nil {
		logrus.Warnf("[DebuggerSynchronizer] add thread fail, err = %v", err)
	}
}

func (s *DebuggerSynchronizer) threadClosed(reply *protocol.ThreadClosedReply) {
	if err := s.processManager.RemoveThread(reply.ThreadID); err != nil {
		logrus.Debugf("[DebuggerSynchronizer] remove thread fail, err = %v", err)
	}
}

// exceptionOccurred 异常发生时目标进程暂停在发生异常的线程上
func (s *DebuggerSynchronizer) exceptionOccurred(reply *protocol.ExceptionOccurredReply) {
	exception := reply.Exception
	s.setAllThreadStates(constants.ThreadSuspended)
	s.activateThread(exception.ThreadID)
	s.processManager.AddException(exception)
	s.refreshRegisters()
}
