package debugger

import (
	"fmt"
	"github.com/fansqz/remote-debugger/constants"
	e "github.com/fansqz/remote-debugger/error"
	"strconv"
	"strings"
)

// RelocatedAddress 目标进程中的运行时地址
type RelocatedAddress uint64

func (a RelocatedAddress) String() string {
	return fmt.Sprintf("0x%x", uint64(a))
}

// BreakpointAddress 断点的逻辑地址，由模块和模块内偏移组成
// Module为空表示绝对地址
type BreakpointAddress struct {
	Module string `json:"module"`
	Offset uint64 `json:"offset"`
}

func NewBreakpointAddress(module string, offset uint64) BreakpointAddress {
	return BreakpointAddress{Module: module, Offset: offset}
}

// String 格式为 module!0xoffset
func (a BreakpointAddress) String() string {
	if a.Module == "" {
		return fmt.Sprintf("0x%x", a.Offset)
	}
	return fmt.Sprintf("%s!0x%x", a.Module, a.Offset)
}

// ParseBreakpointAddress 解析 module!0xoffset 或者 0xaddress 格式的地址
func ParseBreakpointAddress(text string) (BreakpointAddress, error) {
	text = strings.TrimSpace(text)
	module := ""
	offsetText := text
	if index := strings.LastIndex(text, "!"); index >= 0 {
		module = text[:index]
		offsetText = text[index+1:]
		if module == "" {
			return BreakpointAddress{}, fmt.Errorf("%w: %q", e.ErrInvalidAddress, text)
		}
	}
	offset, err := strconv.ParseUint(offsetText, 0, 64)
	if err != nil {
		return BreakpointAddress{}, fmt.Errorf("%w: %q", e.ErrInvalidAddress, text)
	}
	return NewBreakpointAddress(module, offset), nil
}

// Breakpoint 表示断点
type Breakpoint struct {
	Type    constants.BreakpointType `json:"type"`
	Address BreakpointAddress        `json:"address"`
	// Condition 条件表达式，空字符串表示无条件
	Condition string `json:"condition"`
}

func NewBreakpoint(typ constants.BreakpointType, address BreakpointAddress) *Breakpoint {
	return &Breakpoint{Type: typ, Address: address}
}

// MemoryModule 目标进程中加载的模块
type MemoryModule struct {
	Name        string           `json:"name"`
	Path        string           `json:"path"`
	BaseAddress RelocatedAddress `json:"baseAddress"`
	Size        uint64           `json:"size"`
}

// Contains 判断运行时地址是否在模块范围内，两端都包含
func (m MemoryModule) Contains(address RelocatedAddress) bool {
	return address >= m.BaseAddress && uint64(address) <= uint64(m.BaseAddress)+m.Size
}

// IsNamed 模块名称比较忽略大小写
func (m MemoryModule) IsNamed(name string) bool {
	return strings.EqualFold(m.Name, name)
}

func (m MemoryModule) String() string {
	return fmt.Sprintf("%s[%s, 0x%x)", m.Name, m.BaseAddress, uint64(m.BaseAddress)+m.Size)
}

// RegisterValue 寄存器的值
type RegisterValue struct {
	Name  string `json:"name"`
	Value uint64 `json:"value"`
	IsPC  bool   `json:"isPC"`
	IsSP  bool   `json:"isSP"`
}

// ThreadRegisters 一个线程的全部寄存器
type ThreadRegisters struct {
	ThreadID  uint64          `json:"threadID"`
	Registers []RegisterValue `json:"registers"`
}

// ProgramCounter 返回PC寄存器的值
func (t ThreadRegisters) ProgramCounter() (RelocatedAddress, bool) {
	for _, register := range t.Registers {
		if register.IsPC {
			return RelocatedAddress(register.Value), true
		}
	}
	return 0, false
}

// FindThreadRegisters 在寄存器列表中查找某个线程的寄存器
func FindThreadRegisters(values []ThreadRegisters, tid uint64) (ThreadRegisters, bool) {
	for _, value := range values {
		if value.ThreadID == tid {
			return value, true
		}
	}
	return ThreadRegisters{}, false
}

// MemorySection 内存映射中的一段
type MemorySection struct {
	Start RelocatedAddress `json:"start"`
	End   RelocatedAddress `json:"end"`
}

// MemoryMap 目标进程的内存映射
type MemoryMap struct {
	Sections []MemorySection `json:"sections"`
}

// RegisterDescription 寄存器描述
type RegisterDescription struct {
	Name     string `json:"name"`
	Size     int    `json:"size"`
	Editable bool   `json:"editable"`
}

// DebuggerOptions agent的能力
type DebuggerOptions struct {
	CanAttach               bool `json:"canAttach"`
	CanDetach               bool `json:"canDetach"`
	CanTerminate            bool `json:"canTerminate"`
	CanMemmap               bool `json:"canMemmap"`
	CanHalt                 bool `json:"canHalt"`
	CanMultithread          bool `json:"canMultithread"`
	CanSoftwareBreakpoints  bool `json:"canSoftwareBreakpoints"`
	CanBreakOnModuleLoad    bool `json:"canBreakOnModuleLoad"`
	CanBreakOnModuleUnload  bool `json:"canBreakOnModuleUnload"`
	HaltBeforeCommunicating bool `json:"haltBeforeCommunicating"`
	StackAvailable          bool `json:"stackAvailable"`
	BreakpointCounter       int  `json:"breakpointCounter"`
	PageSize                int  `json:"pageSize"`
}

// DebuggerEventSettings 目标进程的事件策略
type DebuggerEventSettings struct {
	BreakOnModuleLoad   bool `json:"breakOnModuleLoad"`
	BreakOnModuleUnload bool `json:"breakOnModuleUnload"`
}

// TargetInformation agent上报的目标信息
type TargetInformation struct {
	AddressSize   int                    `json:"addressSize"`
	Registers     []RegisterDescription  `json:"registers"`
	Options       DebuggerOptions        `json:"options"`
	EventSettings *DebuggerEventSettings `json:"eventSettings"`
}

// DebuggerException 目标进程中发生的异常
type DebuggerException struct {
	ThreadID uint64           `json:"threadID"`
	Address  RelocatedAddress `json:"address"`
	Code     uint64           `json:"code"`
	Name     string           `json:"name"`
}
