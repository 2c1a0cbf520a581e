package utils

import (
	"context"
	"github.com/fansqz/remote-debugger/utils/gosync"
	"github.com/sirupsen/logrus"
	"sync"
	"time"
)

// TimeoutManager 一个计时器
// 如果在timeout时间内没有执行Reset，就会执行fun函数，fun最多执行一次
type TimeoutManager struct {
	timeout      time.Duration
	resetChannel chan struct{}
	done         chan struct{}
	cancelOnce   sync.Once
	fun          func()
}

// NewTimeoutManager 创建一个新的计时器实例
func NewTimeoutManager() *TimeoutManager {
	return &TimeoutManager{
		resetChannel: make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// Start 开始计时
// 在timeout时间内没有执行Reset，就会执行fun函数，ctx取消等同于Cancel
func (t *TimeoutManager) Start(ctx context.Context, timeout time.Duration, fun func()) {
	t.timeout = timeout
	t.fun = fun
	gosync.Go(ctx, func(ctx context.Context) {
		timer := time.NewTimer(t.timeout)
		defer timer.Stop()
		for {
			select {
			case <-timer.C:
				logrus.Infof("[TimeoutManager] timer expired after %v", t.timeout)
				t.fun()
				return
			case <-t.resetChannel:
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(t.timeout)
			case <-t.done:
				return
			case <-ctx.Done():
				return
			}
		}
	})
}

// Reset 重置计时器，不会阻塞
func (t *TimeoutManager) Reset() {
	select {
	case t.resetChannel <- struct{}{}:
	default:
	}
}

// Cancel 取消计时，可以重复调用
func (t *TimeoutManager) Cancel() {
	t.cancelOnce.Do(func() { close(t.done) })
}
