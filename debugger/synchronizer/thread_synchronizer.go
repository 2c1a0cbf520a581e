package synchronizer

import (
	"context"
	"github.com/fansqz/remote-debugger/constants"
	. "github.com/fansqz/remote-debugger/debugger"
	"github.com/fansqz/remote-debugger/debugger/process"
)

// ThreadStateSynchronizer 将本地请求的线程状态发送给agent
// agent确认的状态通过Thread.SetState修改，不会经过这里
type ThreadStateSynchronizer struct {
	process.ListenerAdapter

	ctx            context.Context
	debugger       Debugger
	processManager *process.ProcessManager
	onError        func(error)
}

func newThreadStateSynchronizer(ctx context.Context, d Debugger, pm *process.ProcessManager,
	onError func(error)) *ThreadStateSynchronizer {
	s := &ThreadStateSynchronizer{
		ctx:            ctx,
		debugger:       d,
		processManager: pm,
		onError:        onError,
	}
	pm.AddListener(s)
	for _, thread := range pm.GetThreads() {
		thread.AddListener(s)
	}
	return s
}

func (s *ThreadStateSynchronizer) dispose() {
	s.processManager.RemoveListener(s)
	for _, thread := range s.processManager.GetThreads() {
		thread.RemoveListener(s)
	}
}

func (s *ThreadStateSynchronizer) AddedThread(thread *process.Thread) {
	thread.AddListener(s)
}

func (s *ThreadStateSynchronizer) RemovedThread(thread *process.Thread) {
	thread.RemoveListener(s)
}

// StateRequested 发送命令失败时恢复原来的状态
func (s *ThreadStateSynchronizer) StateRequested(thread *process.Thread, oldState, newState constants.ThreadState) {
	if !s.debugger.IsConnected() {
		thread.SetState(oldState)
		return
	}
	var err error
	switch newState {
	case constants.ThreadRunning:
		err = s.debugger.ResumeThread(s.ctx, thread.ID())
	case constants.ThreadSuspended:
		err = s.debugger.SuspendThread(s.ctx, thread.ID())
	}
	if err != nil {
		s.onError(err)
		thread.SetState(oldState)
	}
}

func (s *ThreadStateSynchronizer) StateChanged(*process.Thread, constants.ThreadState, constants.ThreadState) {
}

func (s *ThreadStateSynchronizer) RegistersChanged(*process.Thread) {}
