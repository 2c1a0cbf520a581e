package synchronizer

import (
	"github.com/fansqz/remote-debugger/protocol"
	"github.com/fansqz/remote-debugger/utils/gosync"
	"sync"
)

// Listener 调试事件的监听者
type Listener interface {
	// ReceivedReply 每一条处理完的agent消息
	ReceivedReply(reply protocol.Reply)
	// DebugException 处理消息时发送命令失败
	DebugException(err error)
	// DebuggerClosed 与agent的连接断开
	DebuggerClosed(errorCode uint32)
}

// ListenerAdapter 空实现，嵌入以后只需要实现关心的方法
type ListenerAdapter struct{}

func (ListenerAdapter) ReceivedReply(protocol.Reply) {}
func (ListenerAdapter) DebugException(error)         {}
func (ListenerAdapter) DebuggerClosed(uint32)        {}

// listenerProvider 通知所有监听者，一个监听者panic不影响其他监听者
type listenerProvider struct {
	lock      sync.RWMutex
	listeners []Listener
}

func (p *listenerProvider) add(listener Listener) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.listeners = append(p.listeners, listener)
}

func (p *listenerProvider) remove(listener Listener) {
	p.lock.Lock()
	defer p.lock.Unlock()
	for i, l := range p.listeners {
		if l == listener {
			p.listeners = append(p.listeners[:i:i], p.listeners[i+1:]...)
			return
		}
	}
}

// notify 返回所有监听者产生的错误
func (p *listenerProvider) notify(f func(l Listener)) []error {
	p.lock.RLock()
	listeners := make([]Listener, len(p.listeners))
	copy(listeners, p.listeners)
	p.lock.RUnlock()
	var errs []error
	for _, listener := range listeners {
		l := listener
		if err := gosync.Safe("debug event listener", func() { f(l) }); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
