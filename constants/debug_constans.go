package constants

// BreakpointType 断点类型，创建以后不可修改
type BreakpointType string

const (
	// BreakpointRegular 用户设置的普通断点，命中以后目标进程暂停
	BreakpointRegular BreakpointType = "regular"
	// BreakpointEcho 回显断点，命中以后只记录寄存器，agent会自动继续执行
	BreakpointEcho BreakpointType = "echo"
	// BreakpointStep 单步断点，只在一次单步过程中有效
	BreakpointStep BreakpointType = "step"
)

// BreakpointTypes 所有的断点类型
var BreakpointTypes = []BreakpointType{BreakpointRegular, BreakpointEcho, BreakpointStep}

// BreakpointStatus 断点状态
type BreakpointStatus string

const (
	// BreakpointInactive 断点存在，但是没有设置到目标进程（模块未加载或者未连接）
	BreakpointInactive BreakpointStatus = "inactive"
	// BreakpointEnabled 已经请求设置，等待agent确认
	BreakpointEnabled BreakpointStatus = "enabled"
	// BreakpointActive agent确认断点已经设置
	BreakpointActive BreakpointStatus = "active"
	// BreakpointHit 目标进程当前停在该断点
	BreakpointHit BreakpointStatus = "hit"
	// BreakpointDisabled 用户禁用的断点，仍然保留在本地
	BreakpointDisabled BreakpointStatus = "disabled"
	// BreakpointDeleting 已经请求删除，等待agent确认
	BreakpointDeleting BreakpointStatus = "deleting"
	// BreakpointInvalid agent拒绝了该断点
	BreakpointInvalid BreakpointStatus = "invalid"
)

// IsLive 断点是否已经（或者正在）设置到目标进程
func (s BreakpointStatus) IsLive() bool {
	return s == BreakpointEnabled || s == BreakpointActive || s == BreakpointHit
}

// ThreadState 线程状态
type ThreadState string

const (
	ThreadRunning   ThreadState = "running"
	ThreadSuspended ThreadState = "suspended"
)

// Opposite 返回相反的线程状态
func (s ThreadState) Opposite() ThreadState {
	if s == ThreadRunning {
		return ThreadSuspended
	}
	return ThreadRunning
}

// CommandType 发送给agent的命令类型
type CommandType string

const (
	SetBreakpointsCommand         CommandType = "setBreakpoints"
	RemoveBreakpointsCommand      CommandType = "removeBreakpoints"
	SetBreakpointConditionCommand CommandType = "setBreakpointCondition"
	ResumeCommand                 CommandType = "resume"
	ResumeThreadCommand           CommandType = "resumeThread"
	SuspendThreadCommand          CommandType = "suspendThread"
	ReadRegistersCommand          CommandType = "readRegisters"
	ReadMemoryCommand             CommandType = "readMemory"
	GetMemoryMapCommand           CommandType = "getMemoryMap"
	HaltCommand                   CommandType = "halt"
	SingleStepCommand             CommandType = "singleStep"
	DetachCommand                 CommandType = "detach"
	TerminateCommand              CommandType = "terminate"
)

// ReplyTag agent返回消息的类型
type ReplyTag string

const (
	AttachReply                 ReplyTag = "attach"
	DetachReply                 ReplyTag = "detach"
	TerminateReply              ReplyTag = "terminate"
	ProcessStartReply           ReplyTag = "processStart"
	ProcessClosedReply          ReplyTag = "processClosed"
	ConnectionClosedReply       ReplyTag = "connectionClosed"
	TargetInformationReply      ReplyTag = "targetInformation"
	BreakpointSetReply          ReplyTag = "breakpointSet"
	BreakpointRemovedReply      ReplyTag = "breakpointRemoved"
	BreakpointHitReply          ReplyTag = "breakpointHit"
	EchoBreakpointSetReply      ReplyTag = "echoBreakpointSet"
	EchoBreakpointRemovedReply  ReplyTag = "echoBreakpointRemoved"
	EchoBreakpointHitReply      ReplyTag = "echoBreakpointHit"
	StepBreakpointSetReply      ReplyTag = "stepBreakpointSet"
	StepBreakpointRemovedReply  ReplyTag = "stepBreakpointRemoved"
	StepBreakpointHitReply      ReplyTag = "stepBreakpointHit"
	BreakpointConditionSetReply ReplyTag = "breakpointConditionSet"
	ResumeReply                 ReplyTag = "resume"
	SingleStepReply             ReplyTag = "singleStep"
	HaltReply                   ReplyTag = "halt"
	ResumeThreadReply           ReplyTag = "resumeThread"
	SuspendThreadReply          ReplyTag = "suspendThread"
	RegistersReply              ReplyTag = "registers"
	ReadMemoryReply             ReplyTag = "readMemory"
	MemoryMapReply              ReplyTag = "memoryMap"
	ModuleLoadedReply           ReplyTag = "moduleLoaded"
	ModuleUnloadedReply         ReplyTag = "moduleUnloaded"
	ThreadCreatedReply          ReplyTag = "threadCreated"
	ThreadClosedReply           ReplyTag = "threadClosed"
	ExceptionOccurredReply      ReplyTag = "exceptionOccurred"
)

// agent返回的错误码，0表示成功
const (
	ErrorCodeSuccess        uint32 = 0
	ErrorCodeGeneric        uint32 = 1
	ErrorCodeThreadNotFound uint32 = 2
	ErrorCodeInvalidAddress uint32 = 3
	// ErrorCodeConnectionLost 连接意外断开
	ErrorCodeConnectionLost uint32 = 100
	// ErrorCodeIdleTimeout 长时间没有收到agent的消息
	ErrorCodeIdleTimeout uint32 = 101
	// ErrorCodeProtocolError agent发送了无法解析的消息
	ErrorCodeProtocolError uint32 = 102
)
