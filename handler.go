package main

import (
	"fmt"
	"github.com/fansqz/remote-debugger/constants"
	. "github.com/fansqz/remote-debugger/debugger"
	"github.com/fansqz/remote-debugger/debugger/breakpoint"
	"github.com/fansqz/remote-debugger/protocol"
	"github.com/google/go-dap"
)

// eventHandler 把调试会话中的事件转换为DAP事件推送给IDE
// 同时监听agent消息和普通断点的状态变化
type eventHandler struct {
	breakpoint.ListenerAdapter
	client *ClientSession
}

func (h *eventHandler) ReceivedReply(reply protocol.Reply) {
	if !reply.Success() {
		h.output("stderr", fmt.Sprintf("%s failed with error code %d\n", reply.Tag(), reply.Header().ErrorCode))
		return
	}
	switch reply := reply.(type) {
	case *protocol.BreakpointHitReply:
		h.stopped("breakpoint", reply.ThreadID, "")
	case *protocol.StepBreakpointHitReply:
		h.stopped("step", reply.ThreadID, "")
	case *protocol.SingleStepReply:
		h.stopped("step", reply.ThreadID, "")
	case *protocol.HaltReply:
		h.stopped("pause", 0, "")
	case *protocol.ExceptionOccurredReply:
		h.stopped("exception", reply.Exception.ThreadID,
			fmt.Sprintf("%s (0x%x) at %s", reply.Exception.Name, reply.Exception.Code, reply.Exception.Address))
	case *protocol.EchoBreakpointHitReply:
		h.output("console", fmt.Sprintf("thread %d passed echo breakpoint\n", reply.ThreadID))
	case *protocol.ResumeReply:
		event := &dap.ContinuedEvent{Event: *newEvent("continued")}
		event.Body.AllThreadsContinued = true
		h.client.send(event)
	case *protocol.ResumeThreadReply:
		event := &dap.ContinuedEvent{Event: *newEvent("continued")}
		event.Body.ThreadId = int(reply.ThreadID)
		h.client.send(event)
	case *protocol.ProcessStartReply:
		h.thread("started", reply.Thread.ThreadID)
		h.module("new", reply.Module)
	case *protocol.ThreadCreatedReply:
		h.thread("started", reply.ThreadID)
	case *protocol.ThreadClosedReply:
		h.thread("exited", reply.ThreadID)
	case *protocol.ModuleLoadedReply:
		h.module("new", reply.Module)
	case *protocol.ModuleUnloadedReply:
		h.module("removed", reply.Module)
	case *protocol.ProcessClosedReply, *protocol.TerminateReply, *protocol.DetachReply:
		h.client.send(&dap.TerminatedEvent{Event: *newEvent("terminated")})
	}
}

func (h *eventHandler) DebugException(err error) {
	h.output("stderr", fmt.Sprintf("debugger error: %v\n", err))
}

func (h *eventHandler) DebuggerClosed(errorCode uint32) {
	h.output("console", fmt.Sprintf("connection to agent closed, error code %d\n", errorCode))
	h.client.send(&dap.TerminatedEvent{Event: *newEvent("terminated")})
}

// BreakpointsStatusChanged 普通断点的状态变化
func (h *eventHandler) BreakpointsStatusChanged(typ constants.BreakpointType, changes []breakpoint.StatusChange) {
	if typ != constants.BreakpointRegular {
		return
	}
	for _, change := range changes {
		event := &dap.BreakpointEvent{Event: *newEvent("breakpoint")}
		event.Body.Reason = "changed"
		event.Body.Breakpoint = h.client.toDAPBreakpoint(change.Breakpoint.Address, change.New)
		h.client.send(event)
	}
}

func (h *eventHandler) BreakpointsRemoved(typ constants.BreakpointType, breakpoints []Breakpoint, passive bool) {
	if typ != constants.BreakpointRegular {
		return
	}
	for _, bp := range breakpoints {
		event := &dap.BreakpointEvent{Event: *newEvent("breakpoint")}
		event.Body.Reason = "removed"
		event.Body.Breakpoint = dap.Breakpoint{
			Id:                   h.client.breakpointID(bp.Address),
			InstructionReference: bp.Address.String(),
		}
		h.client.forgetBreakpoint(bp.Address)
		h.client.send(event)
	}
}

// stopped tid为0时表示所有线程都已经暂停
func (h *eventHandler) stopped(reason string, tid uint64, text string) {
	event := &dap.StoppedEvent{Event: *newEvent("stopped")}
	event.Body.Reason = reason
	event.Body.ThreadId = int(tid)
	event.Body.AllThreadsStopped = true
	event.Body.Text = text
	h.client.send(event)
}

func (h *eventHandler) thread(reason string, tid uint64) {
	event := &dap.ThreadEvent{Event: *newEvent("thread")}
	event.Body.Reason = reason
	event.Body.ThreadId = int(tid)
	h.client.send(event)
}

func (h *eventHandler) module(reason string, module MemoryModule) {
	event := &dap.ModuleEvent{Event: *newEvent("module")}
	event.Body.Reason = reason
	event.Body.Module = toDAPModule(module)
	h.client.send(event)
}

func (h *eventHandler) output(category string, text string) {
	event := &dap.OutputEvent{Event: *newEvent("output")}
	event.Body.Category = category
	event.Body.Output = text
	h.client.send(event)
}
