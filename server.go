package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"github.com/fansqz/remote-debugger/constants"
	. "github.com/fansqz/remote-debugger/debugger"
	"github.com/fansqz/remote-debugger/debugger/session"
	"github.com/fansqz/remote-debugger/utils/gosync"
	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"
	"io"
	"net"
	"sync"
)

// serve 接受IDE的连接，直到ctx结束
func serve(ctx context.Context, listener net.Listener, debugSession *session.DebugSession) error {
	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logrus.Errorf("[Server] accept fail, err = %v", err)
			return err
		}
		gosync.Go(ctx, func(ctx context.Context) {
			handleConnection(ctx, conn, debugSession)
		})
	}
}

// handleConnection 处理一个IDE连接，请求按顺序处理，事件由调试会话推送
func handleConnection(ctx context.Context, conn net.Conn, debugSession *session.DebugSession) {
	client := newClientSession(conn, debugSession)
	debugSession.AddListener(client.handler)
	debugSession.BreakpointManager().AddListener(client.handler)
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		debugSession.RemoveListener(client.handler)
		debugSession.BreakpointManager().RemoveListener(client.handler)
		_ = conn.Close()
	}()

	for {
		err := client.handleRequest(ctx)
		if err == nil {
			continue
		}
		var fieldErr *dap.DecodeProtocolMessageFieldError
		if errors.As(err, &fieldErr) {
			client.send(newErrorResponse(fieldErr.Seq, fieldErr.FieldValue,
				fmt.Sprintf("%s is not yet supported", fieldErr.FieldValue)))
			continue
		}
		if err == io.EOF {
			logrus.Infof("[Server] client %s closed", conn.RemoteAddr())
		} else {
			logrus.Warnf("[Server] read request fail, err = %v", err)
		}
		return
	}
}

// ClientSession 一个IDE连接
type ClientSession struct {
	conn    net.Conn
	rw      *bufio.ReadWriter
	session *session.DebugSession
	handler *eventHandler
	// 请求处理和事件推送在不同的goroutine中写连接
	sendLock sync.Mutex

	idLock        sync.Mutex
	nextID        int
	breakpointIDs map[BreakpointAddress]int
}

func newClientSession(conn net.Conn, debugSession *session.DebugSession) *ClientSession {
	c := &ClientSession{
		conn:          conn,
		rw:            bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)),
		session:       debugSession,
		breakpointIDs: make(map[BreakpointAddress]int),
	}
	c.handler = &eventHandler{client: c}
	return c
}

func (c *ClientSession) handleRequest(ctx context.Context) error {
	request, err := dap.ReadProtocolMessage(c.rw.Reader)
	if err != nil {
		return err
	}
	c.dispatchRequest(ctx, request)
	return nil
}

func (c *ClientSession) dispatchRequest(ctx context.Context, request dap.Message) {
	switch request := request.(type) {
	case *dap.InitializeRequest:
		c.onInitializeRequest(request)
	case *dap.AttachRequest:
		c.onAttachRequest(ctx, request)
	case *dap.ConfigurationDoneRequest:
		c.onConfigurationDoneRequest(request)
	case *dap.SetInstructionBreakpointsRequest:
		c.onSetInstructionBreakpointsRequest(request)
	case *dap.ContinueRequest:
		c.onContinueRequest(ctx, request)
	case *dap.PauseRequest:
		c.onPauseRequest(ctx, request)
	case *dap.NextRequest:
		c.onNextRequest(ctx, request)
	case *dap.StepInRequest:
		c.onStepInRequest(ctx, request)
	case *dap.ThreadsRequest:
		c.onThreadsRequest(request)
	case *dap.ModulesRequest:
		c.onModulesRequest(request)
	case *dap.DisconnectRequest:
		c.onDisconnectRequest(ctx, request)
	default:
		if r, ok := request.(dap.RequestMessage); ok {
			baseReq := r.GetRequest()
			c.send(newErrorResponse(baseReq.Seq, baseReq.Command, fmt.Sprintf("%s is not yet supported", baseReq.Command)))
			return
		}
		logrus.Warnf("[Server] unable to process %#v", request)
	}
}

// send Message响应给客户端
func (c *ClientSession) send(message dap.Message) {
	c.sendLock.Lock()
	defer c.sendLock.Unlock()
	if err := dap.WriteProtocolMessage(c.rw.Writer, message); err != nil {
		logrus.Debugf("[Server] write message fail, err = %v", err)
		return
	}
	if err := c.rw.Flush(); err != nil {
		logrus.Debugf("[Server] flush message fail, err = %v", err)
	}
}

// breakpointID 为断点地址分配DAP中使用的id
func (c *ClientSession) breakpointID(address BreakpointAddress) int {
	c.idLock.Lock()
	defer c.idLock.Unlock()
	if id, ok := c.breakpointIDs[address]; ok {
		return id
	}
	c.nextID++
	c.breakpointIDs[address] = c.nextID
	return c.nextID
}

func (c *ClientSession) forgetBreakpoint(address BreakpointAddress) {
	c.idLock.Lock()
	defer c.idLock.Unlock()
	delete(c.breakpointIDs, address)
}

// toDAPBreakpoint 断点被agent确认以后才认为是verified
func (c *ClientSession) toDAPBreakpoint(address BreakpointAddress, status constants.BreakpointStatus) dap.Breakpoint {
	return dap.Breakpoint{
		Id:                   c.breakpointID(address),
		Verified:             status == constants.BreakpointActive || status == constants.BreakpointHit,
		Message:              string(status),
		InstructionReference: address.String(),
	}
}

func (c *ClientSession) onInitializeRequest(request *dap.InitializeRequest) {
	response := &dap.InitializeResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.SupportsConfigurationDoneRequest = true
	response.Body.SupportsInstructionBreakpoints = true
	response.Body.SupportsConditionalBreakpoints = true
	response.Body.SupportsModulesRequest = true
	response.Body.SupportTerminateDebuggee = true
	c.send(response)
	c.send(&dap.InitializedEvent{Event: *newEvent("initialized")})
}

// onAttachRequest 没有连接agent时按照配置重新连接
func (c *ClientSession) onAttachRequest(ctx context.Context, request *dap.AttachRequest) {
	if !c.session.Debugger().IsConnected() {
		if err := c.session.Connect(ctx); err != nil {
			c.send(newErrorResponse(request.Seq, request.Command, err.Error()))
			return
		}
	}
	response := &dap.AttachResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	c.send(response)
}

func (c *ClientSession) onConfigurationDoneRequest(request *dap.ConfigurationDoneRequest) {
	response := &dap.ConfigurationDoneResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	c.send(response)
}

type instructionBreakpoint struct {
	reference string
	address   BreakpointAddress
	condition string
	err       error
}

// onSetInstructionBreakpointsRequest 请求中的断点是完整的断点集合，不在集合中的普通断点会被删除
func (c *ClientSession) onSetInstructionBreakpointsRequest(request *dap.SetInstructionBreakpointsRequest) {
	manager := c.session.BreakpointManager()
	requested := make([]instructionBreakpoint, 0, len(request.Arguments.Breakpoints))
	wanted := make(map[BreakpointAddress]bool, len(request.Arguments.Breakpoints))
	addresses := make([]BreakpointAddress, 0, len(request.Arguments.Breakpoints))
	for _, bp := range request.Arguments.Breakpoints {
		item := instructionBreakpoint{reference: bp.InstructionReference, condition: bp.Condition}
		item.address, item.err = ParseBreakpointAddress(bp.InstructionReference)
		if item.err == nil {
			item.address.Offset += uint64(bp.Offset)
			if !wanted[item.address] {
				wanted[item.address] = true
				addresses = append(addresses, item.address)
			}
		}
		requested = append(requested, item)
	}

	var removed []BreakpointAddress
	for _, bp := range manager.GetBreakpoints(constants.BreakpointRegular) {
		if !wanted[bp.Address] {
			removed = append(removed, bp.Address)
		}
	}
	if len(removed) != 0 {
		c.session.RemoveBreakpoints(removed)
	}
	c.session.SetBreakpoints(addresses)

	response := &dap.SetInstructionBreakpointsResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.Breakpoints = make([]dap.Breakpoint, 0, len(requested))
	for _, item := range requested {
		if item.err != nil {
			response.Body.Breakpoints = append(response.Body.Breakpoints, dap.Breakpoint{
				Verified:             false,
				Message:              item.err.Error(),
				InstructionReference: item.reference,
			})
			continue
		}
		bp, ok := manager.GetBreakpoint(constants.BreakpointRegular, item.address)
		if ok && bp.Condition != item.condition {
			if err := manager.SetBreakpointCondition(item.address, item.condition); err != nil {
				response.Body.Breakpoints = append(response.Body.Breakpoints, dap.Breakpoint{
					Id:                   c.breakpointID(item.address),
					Verified:             false,
					Message:              err.Error(),
					InstructionReference: item.reference,
				})
				continue
			}
		}
		status, _ := manager.GetBreakpointStatus(constants.BreakpointRegular, item.address)
		response.Body.Breakpoints = append(response.Body.Breakpoints, c.toDAPBreakpoint(item.address, status))
	}
	c.send(response)
}

func (c *ClientSession) onContinueRequest(ctx context.Context, request *dap.ContinueRequest) {
	if err := c.session.Resume(ctx); err != nil {
		c.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.ContinueResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.AllThreadsContinued = true
	c.send(response)
}

func (c *ClientSession) onPauseRequest(ctx context.Context, request *dap.PauseRequest) {
	if err := c.session.Halt(ctx); err != nil {
		c.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.PauseResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	c.send(response)
}

// onNextRequest 按指令单步
func (c *ClientSession) onNextRequest(ctx context.Context, request *dap.NextRequest) {
	if err := c.session.SingleStep(ctx); err != nil {
		c.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.NextResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	c.send(response)
}

func (c *ClientSession) onStepInRequest(ctx context.Context, request *dap.StepInRequest) {
	if err := c.session.SingleStep(ctx); err != nil {
		c.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.StepInResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	c.send(response)
}

func (c *ClientSession) onThreadsRequest(request *dap.ThreadsRequest) {
	threads := c.session.ProcessManager().GetThreads()
	response := &dap.ThreadsResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.Threads = make([]dap.Thread, 0, len(threads))
	for _, thread := range threads {
		response.Body.Threads = append(response.Body.Threads, dap.Thread{
			Id:   int(thread.ID()),
			Name: fmt.Sprintf("Thread %d (%s)", thread.ID(), thread.State()),
		})
	}
	c.send(response)
}

func (c *ClientSession) onModulesRequest(request *dap.ModulesRequest) {
	modules := c.session.ProcessManager().GetModules()
	response := &dap.ModulesResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.Modules = make([]dap.Module, 0, len(modules))
	for _, module := range modules {
		response.Body.Modules = append(response.Body.Modules, toDAPModule(module))
	}
	response.Body.TotalModules = len(modules)
	c.send(response)
}

// onDisconnectRequest terminateDebuggee为true时终止目标进程，否则只是分离
func (c *ClientSession) onDisconnectRequest(ctx context.Context, request *dap.DisconnectRequest) {
	if c.session.Debugger().IsConnected() {
		var err error
		if request.Arguments != nil && request.Arguments.TerminateDebuggee {
			err = c.session.Terminate(ctx)
		} else {
			err = c.session.Detach(ctx)
		}
		if err != nil {
			c.send(newErrorResponse(request.Seq, request.Command, err.Error()))
			return
		}
	}
	response := &dap.DisconnectResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	c.send(response)
}

func toDAPModule(module MemoryModule) dap.Module {
	return dap.Module{
		Id:           module.Name,
		Name:         module.Name,
		Path:         module.Path,
		AddressRange: fmt.Sprintf("%s-0x%x", module.BaseAddress, uint64(module.BaseAddress)+module.Size),
	}
}

func newEvent(event string) *dap.Event {
	return &dap.Event{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "event",
		},
		Event: event,
	}
}

func newResponse(requestSeq int, command string) *dap.Response {
	return &dap.Response{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "response",
		},
		Command:    command,
		RequestSeq: requestSeq,
		Success:    true,
	}
}

func newErrorResponse(requestSeq int, command string, message string) *dap.ErrorResponse {
	er := &dap.ErrorResponse{}
	er.Response = *newResponse(requestSeq, command)
	er.Success = false
	er.Message = message
	er.Body.Error = &dap.ErrorMessage{}
	er.Body.Error.Format = message
	er.Body.Error.Id = 12345
	return er
}
