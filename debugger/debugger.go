package debugger

import (
	"context"
	"github.com/fansqz/remote-debugger/constants"
)

// Debugger
// 与远程调试agent通信的抽象，所有命令都是发送以后立即返回，
// 结果通过异步的reply返回，同步返回的error只表示命令没有发送出去
// 需要保证并发安全
type Debugger interface {
	// IsConnected 是否已经连接agent
	IsConnected() bool
	// SetBreakpoints 在目标进程中设置一批断点
	SetBreakpoints(ctx context.Context, addresses []BreakpointAddress, typ constants.BreakpointType) error
	// RemoveBreakpoints 在目标进程中移除一批断点
	RemoveBreakpoints(ctx context.Context, addresses []BreakpointAddress, typ constants.BreakpointType) error
	// SetBreakpointCondition 设置断点的条件
	SetBreakpointCondition(ctx context.Context, address BreakpointAddress, condition string) error
	// Resume 继续执行目标进程
	Resume(ctx context.Context) error
	// ResumeThread 继续执行某个线程
	ResumeThread(ctx context.Context, tid uint64) error
	// SuspendThread 暂停某个线程
	SuspendThread(ctx context.Context, tid uint64) error
	// ReadRegisters 读取所有线程的寄存器
	ReadRegisters(ctx context.Context) error
	// ReadMemory 读取目标进程内存
	ReadMemory(ctx context.Context, address RelocatedAddress, size uint64) error
	// GetMemoryMap 获取内存映射
	GetMemoryMap(ctx context.Context) error
	// Halt 暂停目标进程
	Halt(ctx context.Context) error
	// SingleStep 单步执行活动线程
	SingleStep(ctx context.Context, tid uint64) error
	// Detach 从目标进程分离
	Detach(ctx context.Context) error
	// Terminate 终止目标进程
	Terminate(ctx context.Context) error

	// FileToMemory 将断点的逻辑地址转换为运行时地址
	FileToMemory(address BreakpointAddress) RelocatedAddress
	// MemoryToFile 将运行时地址转换为逻辑地址
	MemoryToFile(address RelocatedAddress) BreakpointAddress
	// SetAddressTranslator 设置模块的地址转换，fileBase为模块文件中的基址，imageBase为加载后的基址
	SetAddressTranslator(module string, fileBase uint64, imageBase RelocatedAddress)
	// RemoveAddressTranslator 移除模块的地址转换
	RemoveAddressTranslator(module string)
	// SetTerminated 标记调试已经结束，之后IsConnected返回false
	SetTerminated()
}
