package session

import (
	"context"
	"github.com/fansqz/remote-debugger/constants"
	. "github.com/fansqz/remote-debugger/debugger"
	"github.com/fansqz/remote-debugger/debugger/breakpoint"
	"github.com/fansqz/remote-debugger/debugger/process"
	"github.com/fansqz/remote-debugger/debugger/remote_debugger"
	"github.com/fansqz/remote-debugger/debugger/synchronizer"
	e "github.com/fansqz/remote-debugger/error"
	"github.com/fansqz/remote-debugger/protocol"
	"github.com/fansqz/remote-debugger/utils"
	"github.com/fansqz/remote-debugger/utils/gosync"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"runtime/debug"
	"sync"
)

const defaultQueueSize = 256

// Option 调试会话的配置
type Option struct {
	Dial         remote_debugger.DialOption
	Debugger     remote_debugger.Option
	Synchronizer synchronizer.Option
	// QueueSize 等待处理的消息数量上限
	QueueSize int
}

type queueItem struct {
	generation uint64
	reply      protocol.Reply
	// reset 断开连接，处理完成以后关闭done
	reset bool
	done  chan struct{}
}

// DebugSession 一次调试会话
// 所有agent消息和断开连接的操作都在同一个goroutine中按顺序处理
type DebugSession struct {
	ID string

	option            Option
	breakpointManager *breakpoint.BreakpointManager
	processManager    *process.ProcessManager
	debugger          *remote_debugger.RemoteDebugger
	synchronizer      *synchronizer.DebuggerSynchronizer

	// 每次连接或者断开都会增加，旧连接的消息会被丢弃
	generation *atomic.Uint64
	queue      chan queueItem

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	stopped   chan struct{}
}

// NewDebugSession 创建会话并启动处理消息的goroutine，不再使用时调用Close
func NewDebugSession(ctx context.Context, option Option) *DebugSession {
	if option.QueueSize <= 0 {
		option.QueueSize = defaultQueueSize
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &DebugSession{
		ID:                utils.GetUUID(),
		option:            option,
		breakpointManager: breakpoint.NewBreakpointManager(),
		processManager:    process.NewProcessManager(),
		debugger:          remote_debugger.NewRemoteDebugger(option.Debugger),
		generation:        atomic.NewUint64(0),
		queue:             make(chan queueItem, option.QueueSize),
		ctx:               ctx,
		cancel:            cancel,
		stopped:           make(chan struct{}),
	}
	s.synchronizer = synchronizer.NewDebuggerSynchronizer(ctx, s.debugger, s.breakpointManager,
		s.processManager, option.Synchronizer)
	gosync.Go(ctx, s.consume)
	return s
}

func (s *DebugSession) BreakpointManager() *breakpoint.BreakpointManager {
	return s.breakpointManager
}

func (s *DebugSession) ProcessManager() *process.ProcessManager {
	return s.processManager
}

func (s *DebugSession) Debugger() Debugger {
	return s.debugger
}

func (s *DebugSession) AddListener(listener synchronizer.Listener) {
	s.synchronizer.AddListener(listener)
}

func (s *DebugSession) RemoveListener(listener synchronizer.Listener) {
	s.synchronizer.RemoveListener(listener)
}

// Connect 根据配置连接agent
func (s *DebugSession) Connect(ctx context.Context) error {
	conn, err := remote_debugger.Dial(ctx, s.option.Dial)
	if err != nil {
		logrus.Errorf("[DebugSession] dial %s fail, err = %v", s.option.Dial.Address, err)
		return err
	}
	if err = s.ConnectWith(conn); err != nil {
		_ = conn.Close()
		return err
	}
	return nil
}

// ConnectWith 使用已经建立的连接
func (s *DebugSession) ConnectWith(conn remote_debugger.Connection) error {
	select {
	case <-s.stopped:
		return e.ErrDebuggerIsClosed
	default:
	}
	if s.debugger.IsConnected() {
		return e.ErrAlreadyConnected
	}
	generation := s.generation.Inc()
	return s.debugger.Connect(s.ctx, conn, func(reply protocol.Reply) {
		s.enqueue(queueItem{generation: generation, reply: reply})
	})
}

// Disconnect 断开连接并重置目标进程的模型，返回时重置已经完成
func (s *DebugSession) Disconnect() {
	item := queueItem{generation: s.generation.Inc(), reset: true, done: make(chan struct{})}
	if !s.enqueue(item) {
		return
	}
	select {
	case <-item.done:
	case <-s.stopped:
	}
}

// Close 断开连接并停止会话
func (s *DebugSession) Close() {
	s.closeOnce.Do(func() {
		s.Disconnect()
		s.cancel()
		s.synchronizer.Dispose()
		s.debugger.SetTerminated()
	})
}

func (s *DebugSession) enqueue(item queueItem) bool {
	select {
	case s.queue <- item:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// consume 按顺序处理消息，直到会话关闭
func (s *DebugSession) consume(ctx context.Context) {
	defer close(s.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-s.queue:
			s.process(item)
		}
	}
}

func (s *DebugSession) process(item queueItem) {
	if item.reset {
		s.reset()
		close(item.done)
		return
	}
	if item.generation != s.generation.Load() {
		logrus.Debugf("[DebugSession] drop %s reply of old connection", item.reply.Tag())
		return
	}
	if err := gosync.Safe(string(item.reply.Tag()), func() { s.synchronizer.ReceivedReply(item.reply) }); err != nil {
		logrus.Errorf("[DebugSession] session %s handle reply fail, err = %v", s.ID, err)
		s.generation.Inc()
		s.reset()
	}
}

// reset 重置过程中出错时只记录日志，保证消费者继续运行
func (s *DebugSession) reset() {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("[DebugSession] reset panic, err = %v\n%s", r, debug.Stack())
		}
	}()
	s.synchronizer.ResetTargetProcess()
}

// SetBreakpoints 添加普通断点，还在等待删除结果的断点重新启用
func (s *DebugSession) SetBreakpoints(addresses []BreakpointAddress) []Breakpoint {
	s.breakpointManager.SetBreakpointStatusIf(constants.BreakpointRegular, constants.BreakpointEnabled,
		breakpoint.StatusIn(constants.BreakpointDeleting), addresses...)
	return s.breakpointManager.AddBreakpoints(constants.BreakpointRegular, addresses)
}

// RemoveBreakpoints 删除普通断点，等待agent确认以后才会真正删除
func (s *DebugSession) RemoveBreakpoints(addresses []BreakpointAddress) {
	s.breakpointManager.SetBreakpointStatus(constants.BreakpointRegular, constants.BreakpointDeleting, addresses...)
}

func (s *DebugSession) Resume(ctx context.Context) error {
	return s.debugger.Resume(ctx)
}

func (s *DebugSession) Halt(ctx context.Context) error {
	return s.debugger.Halt(ctx)
}

// SingleStep 单步执行活动线程
func (s *DebugSession) SingleStep(ctx context.Context) error {
	thread := s.processManager.GetActiveThread()
	if thread == nil {
		return e.ErrThreadNotFound
	}
	return s.debugger.SingleStep(ctx, thread.ID())
}

func (s *DebugSession) Detach(ctx context.Context) error {
	return s.debugger.Detach(ctx)
}

func (s *DebugSession) Terminate(ctx context.Context) error {
	return s.debugger.Terminate(ctx)
}
