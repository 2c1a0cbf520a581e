package remote_debugger

import (
	"context"
	"errors"
	"github.com/fansqz/remote-debugger/constants"
	. "github.com/fansqz/remote-debugger/debugger"
	e "github.com/fansqz/remote-debugger/error"
	"github.com/fansqz/remote-debugger/protocol"
	"github.com/fansqz/remote-debugger/utils"
	"github.com/fansqz/remote-debugger/utils/gosync"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"sync"
	"time"
)

// ReplySink 接收agent的消息，在读取连接的goroutine中调用
type ReplySink func(reply protocol.Reply)

// Option 远程调试器的配置
type Option struct {
	// IdleTimeout 超过该时间没有收到任何消息就认为连接已经断开，0表示不检查
	IdleTimeout time.Duration
}

// link 一次连接，连接只会关闭一次
type link struct {
	conn      Connection
	watchdog  *utils.TimeoutManager
	closeOnce sync.Once
}

// RemoteDebugger 通过连接与agent通信的调试器
type RemoteDebugger struct {
	option        Option
	statusManager *utils.StatusManager
	sequence      *atomic.Uint64
	translator    *addressTranslator

	lock sync.RWMutex
	link *link
}

var _ Debugger = (*RemoteDebugger)(nil)

func NewRemoteDebugger(option Option) *RemoteDebugger {
	return &RemoteDebugger{
		option:        option,
		statusManager: utils.NewStatusManager(),
		sequence:      atomic.NewUint64(0),
		translator:    newAddressTranslator(),
	}
}

// Connect 使用建立好的连接开始调试，收到的消息按照到达顺序交给sink
// 连接异常断开时sink会收到一条ConnectionClosedReply
func (r *RemoteDebugger) Connect(ctx context.Context, conn Connection, sink ReplySink) error {
	if !r.statusManager.Transition(utils.Connected, utils.Init, utils.Closed) {
		return e.ErrAlreadyConnected
	}
	l := &link{conn: conn}
	r.lock.Lock()
	r.link = l
	r.lock.Unlock()
	r.translator.clear()

	if r.option.IdleTimeout > 0 {
		l.watchdog = utils.NewTimeoutManager()
		l.watchdog.Start(ctx, r.option.IdleTimeout, func() {
			logrus.Warnf("[RemoteDebugger] no message from agent in %v", r.option.IdleTimeout)
			r.fail(l, sink, constants.ErrorCodeIdleTimeout)
		})
	}
	stop := context.AfterFunc(ctx, func() { r.shutdown(l) })
	gosync.Go(ctx, func(ctx context.Context) {
		defer stop()
		r.readLoop(l, sink)
	})
	return nil
}

// readLoop 读取并解析消息，直到连接关闭
func (r *RemoteDebugger) readLoop(l *link, sink ReplySink) {
	for {
		data, err := l.conn.Receive()
		if err != nil {
			logrus.Infof("[RemoteDebugger] receive fail, err = %v", err)
			r.fail(l, sink, constants.ErrorCodeConnectionLost)
			return
		}
		if l.watchdog != nil {
			l.watchdog.Reset()
		}
		reply, err := protocol.DecodeReply(data)
		if err != nil {
			logrus.Errorf("[RemoteDebugger] decode reply fail, err = %v", err)
			r.fail(l, sink, constants.ErrorCodeProtocolError)
			return
		}
		sink(reply)
	}
}

// fail 连接异常断开，只有第一次关闭会通知sink
func (r *RemoteDebugger) fail(l *link, sink ReplySink, errorCode uint32) {
	l.closeOnce.Do(func() {
		r.closeLink(l)
		reply := &protocol.ConnectionClosedReply{}
		reply.ErrorCode = errorCode
		sink(reply)
	})
}

// shutdown 本地主动关闭连接，不会通知sink
func (r *RemoteDebugger) shutdown(l *link) {
	l.closeOnce.Do(func() {
		r.closeLink(l)
	})
}

func (r *RemoteDebugger) closeLink(l *link) {
	if l.watchdog != nil {
		l.watchdog.Cancel()
	}
	if err := l.conn.Close(); err != nil {
		logrus.Debugf("[RemoteDebugger] close connection fail, err = %v", err)
	}
	r.lock.Lock()
	if r.link == l {
		r.statusManager.Set(utils.Closed)
	}
	r.lock.Unlock()
}

func (r *RemoteDebugger) IsConnected() bool {
	return r.statusManager.Is(utils.Connected)
}

// SetTerminated 结束调试并关闭连接
func (r *RemoteDebugger) SetTerminated() {
	r.lock.RLock()
	l := r.link
	r.lock.RUnlock()
	r.statusManager.Set(utils.Closed)
	if l != nil {
		r.shutdown(l)
	}
}

// send 编码并发送命令，只表示命令是否发送出去
func (r *RemoteDebugger) send(ctx context.Context, typ constants.CommandType, arguments interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !r.IsConnected() {
		return e.ErrNotConnected
	}
	r.lock.RLock()
	l := r.link
	r.lock.RUnlock()
	data, err := protocol.EncodeCommand(protocol.NewCommand(r.sequence.Inc(), typ, arguments))
	if err != nil {
		return err
	}
	if err = l.conn.Send(data); err != nil {
		logrus.Errorf("[RemoteDebugger] send %s fail, err = %v", typ, err)
		return errors.Join(e.ErrNotConnected, err)
	}
	return nil
}

func (r *RemoteDebugger) relocate(addresses []BreakpointAddress) []RelocatedAddress {
	relocated := make([]RelocatedAddress, 0, len(addresses))
	for _, address := range addresses {
		relocated = append(relocated, r.FileToMemory(address))
	}
	return relocated
}

func (r *RemoteDebugger) SetBreakpoints(ctx context.Context, addresses []BreakpointAddress, typ constants.BreakpointType) error {
	return r.send(ctx, constants.SetBreakpointsCommand, &protocol.BreakpointsArguments{
		BreakpointType: typ,
		Addresses:      r.relocate(addresses),
	})
}

func (r *RemoteDebugger) RemoveBreakpoints(ctx context.Context, addresses []BreakpointAddress, typ constants.BreakpointType) error {
	return r.send(ctx, constants.RemoveBreakpointsCommand, &protocol.BreakpointsArguments{
		BreakpointType: typ,
		Addresses:      r.relocate(addresses),
	})
}

func (r *RemoteDebugger) SetBreakpointCondition(ctx context.Context, address BreakpointAddress, condition string) error {
	return r.send(ctx, constants.SetBreakpointConditionCommand, &protocol.BreakpointConditionArguments{
		Address:   r.FileToMemory(address),
		Condition: condition,
	})
}

func (r *RemoteDebugger) Resume(ctx context.Context) error {
	return r.send(ctx, constants.ResumeCommand, nil)
}

func (r *RemoteDebugger) ResumeThread(ctx context.Context, tid uint64) error {
	return r.send(ctx, constants.ResumeThreadCommand, &protocol.ThreadArguments{ThreadID: tid})
}

func (r *RemoteDebugger) SuspendThread(ctx context.Context, tid uint64) error {
	return r.send(ctx, constants.SuspendThreadCommand, &protocol.ThreadArguments{ThreadID: tid})
}

func (r *RemoteDebugger) ReadRegisters(ctx context.Context) error {
	return r.send(ctx, constants.ReadRegistersCommand, nil)
}

func (r *RemoteDebugger) ReadMemory(ctx context.Context, address RelocatedAddress, size uint64) error {
	return r.send(ctx, constants.ReadMemoryCommand, &protocol.ReadMemoryArguments{Address: address, Size: size})
}

func (r *RemoteDebugger) GetMemoryMap(ctx context.Context) error {
	return r.send(ctx, constants.GetMemoryMapCommand, nil)
}

func (r *RemoteDebugger) Halt(ctx context.Context) error {
	return r.send(ctx, constants.HaltCommand, nil)
}

func (r *RemoteDebugger) SingleStep(ctx context.Context, tid uint64) error {
	return r.send(ctx, constants.SingleStepCommand, &protocol.ThreadArguments{ThreadID: tid})
}

func (r *RemoteDebugger) Detach(ctx context.Context) error {
	return r.send(ctx, constants.DetachCommand, nil)
}

func (r *RemoteDebugger) Terminate(ctx context.Context) error {
	return r.send(ctx, constants.TerminateCommand, nil)
}

func (r *RemoteDebugger) FileToMemory(address BreakpointAddress) RelocatedAddress {
	return r.translator.fileToMemory(address)
}

func (r *RemoteDebugger) MemoryToFile(address RelocatedAddress) BreakpointAddress {
	return r.translator.memoryToFile(address)
}

func (r *RemoteDebugger) SetAddressTranslator(module string, fileBase uint64, imageBase RelocatedAddress) {
	r.translator.set(module, fileBase, imageBase)
}

func (r *RemoteDebugger) RemoveAddressTranslator(module string) {
	r.translator.remove(module)
}
