package session

import (
	"context"
	"errors"
	"github.com/fansqz/remote-debugger/constants"
	. "github.com/fansqz/remote-debugger/debugger"
	e "github.com/fansqz/remote-debugger/error"
	"github.com/fansqz/remote-debugger/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"sync"
	"testing"
	"time"
)

var errConnectionClosed = errors.New("connection closed")

// fakeConnection 内存中的连接，测试代替agent收发消息
type fakeConnection struct {
	incoming  chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mutex sync.Mutex
	sent  []*protocol.RawCommand
}

func newFakeConnection() *fakeConnection {
	return &fakeConnection{
		incoming: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConnection) Receive() ([]byte, error) {
	select {
	case data := <-c.incoming:
		return data, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConnection) Send(data []byte) error {
	select {
	case <-c.closed:
		return errConnectionClosed
	default:
	}
	command, err := protocol.DecodeCommand(data)
	if err != nil {
		return err
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.sent = append(c.sent, command)
	return nil
}

func (c *fakeConnection) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConnection) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConnection) commands(typ constants.CommandType) []*protocol.RawCommand {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	var result []*protocol.RawCommand
	for _, command := range c.sent {
		if command.Type == typ {
			result = append(result, command)
		}
	}
	return result
}

func (c *fakeConnection) push(t *testing.T, reply protocol.Reply) {
	data, err := protocol.EncodeReply(reply)
	require.NoError(t, err)
	c.incoming <- data
}

type closedListener struct {
	mutex sync.Mutex
	codes []uint32
}

func (l *closedListener) ReceivedReply(protocol.Reply) {}

func (l *closedListener) DebugException(error) {}

func (l *closedListener) DebuggerClosed(errorCode uint32) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.codes = append(l.codes, errorCode)
}

func (l *closedListener) get() []uint32 {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return append([]uint32{}, l.codes...)
}

var (
	moduleM = MemoryModule{Name: "m", BaseAddress: 0x1000, Size: 0x1000}
	bpA     = NewBreakpointAddress("m", 0x50)
)

func startedSession(t *testing.T) (*DebugSession, *fakeConnection) {
	s := NewDebugSession(context.Background(), Option{})
	t.Cleanup(s.Close)
	conn := newFakeConnection()
	require.NoError(t, s.ConnectWith(conn))
	conn.push(t, &protocol.ProcessStartReply{
		Thread: protocol.ThreadInfo{ThreadID: 1, State: constants.ThreadSuspended},
		Module: moduleM,
	})
	assert.Eventually(t, func() bool { return s.ProcessManager().IsAttached() }, time.Second, 10*time.Millisecond)
	return s, conn
}

func statusOf(s *DebugSession, address BreakpointAddress) constants.BreakpointStatus {
	status, _ := s.BreakpointManager().GetBreakpointStatus(constants.BreakpointRegular, address)
	return status
}

func TestSessionBreakpointLifecycle(t *testing.T) {
	s, conn := startedSession(t)

	s.SetBreakpoints([]BreakpointAddress{bpA})
	require.Eventually(t, func() bool { return len(conn.commands(constants.SetBreakpointsCommand)) == 1 },
		time.Second, 10*time.Millisecond)
	sets := conn.commands(constants.SetBreakpointsCommand)
	arguments := &protocol.BreakpointsArguments{}
	require.NoError(t, sets[0].ParseArguments(arguments))
	assert.Equal(t, []RelocatedAddress{0x1050}, arguments.Addresses)

	conn.push(t, &protocol.BreakpointSetReply{Addresses: []protocol.AddressResult{{Address: 0x1050}}})
	assert.Eventually(t, func() bool { return statusOf(s, bpA) == constants.BreakpointActive },
		time.Second, 10*time.Millisecond)

	conn.push(t, &protocol.BreakpointHitReply{ThreadID: 1, Registers: []ThreadRegisters{{
		ThreadID:  1,
		Registers: []RegisterValue{{Name: "rip", Value: 0x1050, IsPC: true}},
	}}})
	assert.Eventually(t, func() bool { return statusOf(s, bpA) == constants.BreakpointHit },
		time.Second, 10*time.Millisecond)

	require.NoError(t, s.SingleStep(context.Background()))
	assert.Equal(t, 1, len(conn.commands(constants.SingleStepCommand)))

	s.RemoveBreakpoints([]BreakpointAddress{bpA})
	assert.Eventually(t, func() bool { return len(conn.commands(constants.RemoveBreakpointsCommand)) == 1 },
		time.Second, 10*time.Millisecond)
	conn.push(t, &protocol.BreakpointRemovedReply{Addresses: []protocol.AddressResult{{Address: 0x1050}}})
	assert.Eventually(t, func() bool {
		return !s.BreakpointManager().HasBreakpoint(constants.BreakpointRegular, bpA)
	}, time.Second, 10*time.Millisecond)
}

func TestSessionSetDeletingBreakpointAgain(t *testing.T) {
	s, conn := startedSession(t)
	s.SetBreakpoints([]BreakpointAddress{bpA})
	require.Eventually(t, func() bool { return len(conn.commands(constants.SetBreakpointsCommand)) == 1 },
		time.Second, 10*time.Millisecond)
	conn.push(t, &protocol.BreakpointSetReply{Addresses: []protocol.AddressResult{{Address: 0x1050}}})
	require.Eventually(t, func() bool { return statusOf(s, bpA) == constants.BreakpointActive },
		time.Second, 10*time.Millisecond)

	s.RemoveBreakpoints([]BreakpointAddress{bpA})
	require.Eventually(t, func() bool { return len(conn.commands(constants.RemoveBreakpointsCommand)) == 1 },
		time.Second, 10*time.Millisecond)

	// 删除结果返回之前重新设置，断点重新启用而不是被忽略
	s.SetBreakpoints([]BreakpointAddress{bpA})
	require.Eventually(t, func() bool { return len(conn.commands(constants.SetBreakpointsCommand)) == 2 },
		time.Second, 10*time.Millisecond)
	assert.Equal(t, constants.BreakpointEnabled, statusOf(s, bpA))

	conn.push(t, &protocol.BreakpointRemovedReply{Addresses: []protocol.AddressResult{{Address: 0x1050}}})
	conn.push(t, &protocol.BreakpointSetReply{Addresses: []protocol.AddressResult{{Address: 0x1050}}})
	assert.Eventually(t, func() bool { return statusOf(s, bpA) == constants.BreakpointActive },
		time.Second, 10*time.Millisecond)
}

func TestSessionDisconnect(t *testing.T) {
	s, conn := startedSession(t)
	s.SetBreakpoints([]BreakpointAddress{bpA})
	listener := &closedListener{}
	s.AddListener(listener)

	s.Disconnect()
	assert.False(t, s.ProcessManager().IsAttached())
	assert.Equal(t, 0, s.ProcessManager().GetThreadCount())
	assert.Equal(t, constants.BreakpointInactive, statusOf(s, bpA))
	assert.False(t, s.Debugger().IsConnected())
	assert.True(t, conn.isClosed())
	// 本地断开不会产生连接关闭的通知
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, listener.get())

	// 断开以后可以重新连接
	next := newFakeConnection()
	require.NoError(t, s.ConnectWith(next))
	next.push(t, &protocol.ProcessStartReply{Thread: protocol.ThreadInfo{ThreadID: 2}, Module: moduleM})
	assert.Eventually(t, func() bool { return statusOf(s, bpA) == constants.BreakpointEnabled },
		time.Second, 10*time.Millisecond)
}

func TestSessionConnectionLost(t *testing.T) {
	s, conn := startedSession(t)
	listener := &closedListener{}
	s.AddListener(listener)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return len(listener.get()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []uint32{constants.ErrorCodeConnectionLost}, listener.get())
	assert.False(t, s.ProcessManager().IsAttached())
	assert.Empty(t, s.ProcessManager().GetModules())
}

func TestSessionRecoversFromHandlerPanic(t *testing.T) {
	s, conn := startedSession(t)

	// 命中断点的消息没有PC
	conn.push(t, &protocol.BreakpointHitReply{ThreadID: 1})
	assert.Eventually(t, func() bool { return !s.ProcessManager().IsAttached() }, time.Second, 10*time.Millisecond)
	assert.False(t, s.Debugger().IsConnected())

	// 消费者仍然可以处理断开连接
	s.Disconnect()
}

func TestSessionConnectTwice(t *testing.T) {
	s, _ := startedSession(t)
	assert.ErrorIs(t, s.ConnectWith(newFakeConnection()), e.ErrAlreadyConnected)
}

func TestSessionClosed(t *testing.T) {
	s := NewDebugSession(context.Background(), Option{})
	s.Close()
	s.Close()
	assert.Eventually(t, func() bool {
		return errors.Is(s.ConnectWith(newFakeConnection()), e.ErrDebuggerIsClosed)
	}, time.Second, 10*time.Millisecond)
	assert.Error(t, s.SingleStep(context.Background()))
}
