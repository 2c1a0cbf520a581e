package protocol

import (
	"github.com/fansqz/remote-debugger/constants"
	"github.com/fansqz/remote-debugger/debugger"
)

// Command 发送给agent的命令
type Command struct {
	// 请求序列号
	Sequence uint64                `json:"sequence"`
	Type     constants.CommandType `json:"type"`
	// Arguments 命令参数，不同命令不同
	Arguments interface{} `json:"arguments,omitempty"`
}

// BreakpointsArguments 设置、删除断点
type BreakpointsArguments struct {
	BreakpointType constants.BreakpointType    `json:"breakpointType"`
	Addresses      []debugger.RelocatedAddress `json:"addresses"`
}

// BreakpointConditionArguments 设置断点条件
type BreakpointConditionArguments struct {
	Address   debugger.RelocatedAddress `json:"address"`
	Condition string                    `json:"condition"`
}

// ThreadArguments 针对单个线程的命令
type ThreadArguments struct {
	ThreadID uint64 `json:"threadID"`
}

// ReadMemoryArguments 读取内存
type ReadMemoryArguments struct {
	Address debugger.RelocatedAddress `json:"address"`
	Size    uint64                    `json:"size"`
}

func NewCommand(sequence uint64, typ constants.CommandType, arguments interface{}) *Command {
	return &Command{Sequence: sequence, Type: typ, Arguments: arguments}
}
