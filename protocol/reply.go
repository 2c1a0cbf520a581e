package protocol

import (
	"github.com/fansqz/remote-debugger/constants"
	"github.com/fansqz/remote-debugger/debugger"
)

// Reply agent返回的消息，包括命令的结果和目标进程主动产生的事件
// 只有本包中的类型可以实现该接口
type Reply interface {
	Tag() constants.ReplyTag
	// Header 序列号和错误码
	Header() *ReplyHeader
	// Success 错误码为0表示成功，与消息内容无关
	Success() bool
	isReply()
}

// ReplyHeader 所有消息共有的字段
type ReplyHeader struct {
	Sequence  uint64 `json:"-"`
	ErrorCode uint32 `json:"-"`
}

func (h *ReplyHeader) Header() *ReplyHeader {
	return h
}

func (h *ReplyHeader) Success() bool {
	return h.ErrorCode == constants.ErrorCodeSuccess
}

func (h *ReplyHeader) isReply() {}

// AddressResult 批量断点操作中单个地址的结果，错误码为0表示成功
type AddressResult struct {
	Address   debugger.RelocatedAddress `json:"address"`
	ErrorCode uint32                    `json:"errorCode"`
}

// ThreadInfo 线程信息
type ThreadInfo struct {
	ThreadID uint64                `json:"threadID"`
	State    constants.ThreadState `json:"state"`
}

// AttachReply 已经附加到目标进程
type AttachReply struct {
	ReplyHeader
}

// DetachReply 已经从目标进程分离
type DetachReply struct {
	ReplyHeader
}

// TerminateReply 目标进程已经被终止
type TerminateReply struct {
	ReplyHeader
}

// ProcessStartReply 目标进程启动，带有初始线程和主模块
type ProcessStartReply struct {
	ReplyHeader
	Thread ThreadInfo            `json:"thread"`
	Module debugger.MemoryModule `json:"module"`
}

// ProcessClosedReply 目标进程退出
type ProcessClosedReply struct {
	ReplyHeader
}

// ConnectionClosedReply 与agent的连接断开，错误码说明原因
type ConnectionClosedReply struct {
	ReplyHeader
}

// TargetInformationReply 目标信息
type TargetInformationReply struct {
	ReplyHeader
	Information debugger.TargetInformation `json:"information"`
}

// BreakpointSetReply 普通断点设置结果
type BreakpointSetReply struct {
	ReplyHeader
	Addresses []AddressResult `json:"addresses"`
}

// BreakpointRemovedReply 普通断点删除结果
type BreakpointRemovedReply struct {
	ReplyHeader
	Addresses []AddressResult `json:"addresses"`
}

// BreakpointHitReply 命中普通断点，目标进程暂停
type BreakpointHitReply struct {
	ReplyHeader
	ThreadID  uint64                     `json:"threadID"`
	Registers []debugger.ThreadRegisters `json:"registers"`
}

// EchoBreakpointSetReply 回显断点设置结果
type EchoBreakpointSetReply struct {
	ReplyHeader
	Addresses []AddressResult `json:"addresses"`
}

// EchoBreakpointRemovedReply 回显断点删除结果
type EchoBreakpointRemovedReply struct {
	ReplyHeader
	Addresses []AddressResult `json:"addresses"`
}

// EchoBreakpointHitReply 命中回显断点，agent会自动继续执行
type EchoBreakpointHitReply struct {
	ReplyHeader
	ThreadID  uint64                     `json:"threadID"`
	Registers []debugger.ThreadRegisters `json:"registers"`
}

// StepBreakpointSetReply 单步断点设置结果
type StepBreakpointSetReply struct {
	ReplyHeader
	Addresses []AddressResult `json:"addresses"`
}

// StepBreakpointRemovedReply 单步断点删除结果
type StepBreakpointRemovedReply struct {
	ReplyHeader
	Addresses []AddressResult `json:"addresses"`
}

// StepBreakpointHitReply 命中单步断点
type StepBreakpointHitReply struct {
	ReplyHeader
	ThreadID  uint64                     `json:"threadID"`
	Registers []debugger.ThreadRegisters `json:"registers"`
}

// BreakpointConditionSetReply 断点条件设置结果
type BreakpointConditionSetReply struct {
	ReplyHeader
	Address debugger.RelocatedAddress `json:"address"`
}

// ResumeReply 目标进程继续执行
type ResumeReply struct {
	ReplyHeader
}

// SingleStepReply 单步执行完成
type SingleStepReply struct {
	ReplyHeader
	ThreadID  uint64                     `json:"threadID"`
	Registers []debugger.ThreadRegisters `json:"registers"`
}

// HaltReply 目标进程已经暂停
type HaltReply struct {
	ReplyHeader
}

// ResumeThreadReply 线程继续执行
type ResumeThreadReply struct {
	ReplyHeader
	ThreadID uint64 `json:"threadID"`
}

// SuspendThreadReply 线程暂停
type SuspendThreadReply struct {
	ReplyHeader
	ThreadID uint64 `json:"threadID"`
}

// RegistersReply 所有线程的寄存器
type RegistersReply struct {
	ReplyHeader
	Registers []debugger.ThreadRegisters `json:"registers"`
}

// ReadMemoryReply 读取的内存
type ReadMemoryReply struct {
	ReplyHeader
	Address debugger.RelocatedAddress `json:"address"`
	Data    []byte                    `json:"data"`
}

// MemoryMapReply 内存映射
type MemoryMapReply struct {
	ReplyHeader
	MemoryMap debugger.MemoryMap `json:"memoryMap"`
}

// ModuleLoadedReply 模块加载，ThreadID是加载该模块的线程
type ModuleLoadedReply struct {
	ReplyHeader
	Module   debugger.MemoryModule `json:"module"`
	ThreadID uint64                `json:"threadID"`
}

// ModuleUnloadedReply 模块卸载
type ModuleUnloadedReply struct {
	ReplyHeader
	Module debugger.MemoryModule `json:"module"`
}

// ThreadCreatedReply 线程创建
type ThreadCreatedReply struct {
	ReplyHeader
	ThreadID uint64                `json:"threadID"`
	State    constants.ThreadState `json:"state"`
}

// ThreadClosedReply 线程退出
type ThreadClosedReply struct {
	ReplyHeader
	ThreadID uint64 `json:"threadID"`
}

// ExceptionOccurredReply 目标进程发生异常
type ExceptionOccurredReply struct {
	ReplyHeader
	Exception debugger.DebuggerException `json:"exception"`
}

func (*AttachReply) Tag() constants.ReplyTag            { return constants.AttachReply }
func (*DetachReply) Tag() constants.ReplyTag            { return constants.DetachReply }
func (*TerminateReply) Tag() constants.ReplyTag         { return constants.TerminateReply }
func (*ProcessStartReply) Tag() constants.ReplyTag      { return constants.ProcessStartReply }
func (*ProcessClosedReply) Tag() constants.ReplyTag     { return constants.ProcessClosedReply }
func (*ConnectionClosedReply) Tag() constants.ReplyTag  { return constants.ConnectionClosedReply }
func (*TargetInformationReply) Tag() constants.ReplyTag { return constants.TargetInformationReply }
func (*BreakpointSetReply) Tag() constants.ReplyTag     { return constants.BreakpointSetReply }
func (*BreakpointRemovedReply) Tag() constants.ReplyTag { return constants.BreakpointRemovedReply }
func (*BreakpointHitReply) Tag() constants.ReplyTag     { return constants.BreakpointHitReply }
func (*EchoBreakpointSetReply) Tag() constants.ReplyTag { return constants.EchoBreakpointSetReply }
func (*EchoBreakpointRemovedReply) Tag() constants.ReplyTag {
	return constants.EchoBreakpointRemovedReply
}
func (*EchoBreakpointHitReply) Tag() constants.ReplyTag { return constants.EchoBreakpointHitReply }
func (*StepBreakpointSetReply) Tag() constants.ReplyTag { return constants.StepBreakpointSetReply }
func (*StepBreakpointRemovedReply) Tag() constants.ReplyTag {
	return constants.StepBreakpointRemovedReply
}
func (*StepBreakpointHitReply) Tag() constants.ReplyTag { return constants.StepBreakpointHitReply }
func (*BreakpointConditionSetReply) Tag() constants.ReplyTag {
	return constants.BreakpointConditionSetReply
}
func (*ResumeReply) Tag() constants.ReplyTag            { return constants.ResumeReply }
func (*SingleStepReply) Tag() constants.ReplyTag        { return constants.SingleStepReply }
func (*HaltReply) Tag() constants.ReplyTag              { return constants.HaltReply }
func (*ResumeThreadReply) Tag() constants.ReplyTag      { return constants.ResumeThreadReply }
func (*SuspendThreadReply) Tag() constants.ReplyTag     { return constants.SuspendThreadReply }
func (*RegistersReply) Tag() constants.ReplyTag         { return constants.RegistersReply }
func (*ReadMemoryReply) Tag() constants.ReplyTag        { return constants.ReadMemoryReply }
func (*MemoryMapReply) Tag() constants.ReplyTag         { return constants.MemoryMapReply }
func (*ModuleLoadedReply) Tag() constants.ReplyTag      { return constants.ModuleLoadedReply }
func (*ModuleUnloadedReply) Tag() constants.ReplyTag    { return constants.ModuleUnloadedReply }
func (*ThreadCreatedReply) Tag() constants.ReplyTag     { return constants.ThreadCreatedReply }
func (*ThreadClosedReply) Tag() constants.ReplyTag      { return constants.ThreadClosedReply }
func (*ExceptionOccurredReply) Tag() constants.ReplyTag { return constants.ExceptionOccurredReply }

// replyFactories 根据消息类型创建对应的消息
var replyFactories = map[constants.ReplyTag]func() Reply{
	constants.AttachReply:                 func() Reply { return &AttachReply{} },
	constants.DetachReply:                 func() Reply { return &DetachReply{} },
	constants.TerminateReply:              func() Reply { return &TerminateReply{} },
	constants.ProcessStartReply:           func() Reply { return &ProcessStartReply{} },
	constants.ProcessClosedReply:          func() Reply { return &ProcessClosedReply{} },
	constants.ConnectionClosedReply:       func() Reply { return &ConnectionClosedReply{} },
	constants.TargetInformationReply:      func() Reply { return &TargetInformationReply{} },
	constants.BreakpointSetReply:          func() Reply { return &BreakpointSetReply{} },
	constants.BreakpointRemovedReply:      func() Reply { return &BreakpointRemovedReply{} },
	constants.BreakpointHitReply:          func() Reply { return &BreakpointHitReply{} },
	constants.EchoBreakpointSetReply:      func() Reply { return &EchoBreakpointSetReply{} },
	constants.EchoBreakpointRemovedReply:  func() Reply { return &EchoBreakpointRemovedReply{} },
	constants.EchoBreakpointHitReply:      func() Reply { return &EchoBreakpointHitReply{} },
	constants.StepBreakpointSetReply:      func() Reply { return &StepBreakpointSetReply{} },
	constants.StepBreakpointRemovedReply:  func() Reply { return &StepBreakpointRemovedReply{} },
	constants.StepBreakpointHitReply:      func() Reply { return &StepBreakpointHitReply{} },
	constants.BreakpointConditionSetReply: func() Reply { return &BreakpointConditionSetReply{} },
	constants.ResumeReply:                 func() Reply { return &ResumeReply{} },
	constants.SingleStepReply:             func() Reply { return &SingleStepReply{} },
	constants.HaltReply:                   func() Reply { return &HaltReply{} },
	constants.ResumeThreadReply:           func() Reply { return &ResumeThreadReply{} },
	constants.SuspendThreadReply:          func() Reply { return &SuspendThreadReply{} },
	constants.RegistersReply:              func() Reply { return &RegistersReply{} },
	constants.ReadMemoryReply:             func() Reply { return &ReadMemoryReply{} },
	constants.MemoryMapReply:              func() Reply { return &MemoryMapReply{} },
	constants.ModuleLoadedReply:           func() Reply { return &ModuleLoadedReply{} },
	constants.ModuleUnloadedReply:         func() Reply { return &ModuleUnloadedReply{} },
	constants.ThreadCreatedReply:          func() Reply { return &ThreadCreatedReply{} },
	constants.ThreadClosedReply:           func() Reply { return &ThreadClosedReply{} },
	constants.ExceptionOccurredReply:      func() Reply { return &ExceptionOccurredReply{} },
}
