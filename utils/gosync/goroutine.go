package gosync

import (
	"context"
	"fmt"
	"github.com/sirupsen/logrus"
	"runtime/debug"
)

// Go 封装的go协程工具，会兜住panic，但是目前只能传递ctx
func Go(ctx context.Context, task func(ctx context.Context)) {
	go func(ctx context.Context, f func(ctx context.Context)) {
		defer func() {
			// 在每个协程内部接收该协程自身抛出来的 panic
			if err := recover(); err != nil {
				logrus.Errorf("[gosync] goroutine panic, err = %v\n%s", err, debug.Stack())
			}
		}()
		f(ctx)
	}(ctx, task)
}

// Safe 同步执行f，兜住panic并转换为error返回
// 用于通知监听者，一个监听者出错不影响其他监听者
func Safe(name string, f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panic: %v", name, r)
			logrus.Errorf("[gosync] %v\n%s", err, debug.Stack())
		}
	}()
	f()
	return nil
}
