package synchronizer

import (
	"context"
	"errors"
	"github.com/fansqz/remote-debugger/constants"
	. "github.com/fansqz/remote-debugger/debugger"
	"strings"
	"sync"
)

var errCommandFailed = errors.New("command failed")

// sentCommand mockDebugger收到的一条命令
type sentCommand struct {
	command   constants.CommandType
	typ       constants.BreakpointType
	addresses []BreakpointAddress
	tid       uint64
	condition string
}

type translator struct {
	fileBase  uint64
	imageBase RelocatedAddress
}

// mockDebugger 记录所有命令，fail中的命令同步返回错误
type mockDebugger struct {
	mutex       sync.Mutex
	connected   bool
	commands    []sentCommand
	fail        map[constants.CommandType]bool
	translators map[string]translator
	// translated 每次转换断点地址以后调用，用来在应答处理中间插入本地修改
	translated func(address BreakpointAddress)
}

func newMockDebugger(connected bool) *mockDebugger {
	return &mockDebugger{
		connected:   connected,
		fail:        map[constants.CommandType]bool{},
		translators: map[string]translator{},
	}
}

func (d *mockDebugger) record(command sentCommand) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.fail[command.command] {
		return errCommandFailed
	}
	d.commands = append(d.commands, command)
	return nil
}

func (d *mockDebugger) setConnected(connected bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.connected = connected
}

func (d *mockDebugger) setFail(command constants.CommandType, fail bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.fail[command] = fail
}

// sent 返回某一类命令
func (d *mockDebugger) sent(command constants.CommandType) []sentCommand {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	var result []sentCommand
	for _, c := range d.commands {
		if c.command == command {
			result = append(result, c)
		}
	}
	return result
}

func (d *mockDebugger) reset() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.commands = nil
}

func (d *mockDebugger) IsConnected() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.connected
}

func (d *mockDebugger) SetBreakpoints(_ context.Context, addresses []BreakpointAddress, typ constants.BreakpointType) error {
	return d.record(sentCommand{command: constants.SetBreakpointsCommand, typ: typ, addresses: addresses})
}

func (d *mockDebugger) RemoveBreakpoints(_ context.Context, addresses []BreakpointAddress, typ constants.BreakpointType) error {
	return d.record(sentCommand{command: constants.RemoveBreakpointsCommand, typ: typ, addresses: addresses})
}

func (d *mockDebugger) SetBreakpointCondition(_ context.Context, address BreakpointAddress, condition string) error {
	return d.record(sentCommand{command: constants.SetBreakpointConditionCommand,
		addresses: []BreakpointAddress{address}, condition: condition})
}

func (d *mockDebugger) Resume(context.Context) error {
	return d.record(sentCommand{command: constants.ResumeCommand})
}

func (d *mockDebugger) ResumeThread(_ context.Context, tid uint64) error {
	return d.record(sentCommand{command: constants.ResumeThreadCommand, tid: tid})
}

func (d *mockDebugger) SuspendThread(_ context.Context, tid uint64) error {
	return d.record(sentCommand{command: constants.SuspendThreadCommand, tid: tid})
}

func (d *mockDebugger) ReadRegisters(context.Context) error {
	return d.record(sentCommand{command: constants.ReadRegistersCommand})
}

func (d *mockDebugger) ReadMemory(context.Context, RelocatedAddress, uint64) error {
	return d.record(sentCommand{command: constants.ReadMemoryCommand})
}

func (d *mockDebugger) GetMemoryMap(context.Context) error {
	return d.record(sentCommand{command: constants.GetMemoryMapCommand})
}

func (d *mockDebugger) Halt(context.Context) error {
	return d.record(sentCommand{command: constants.HaltCommand})
}

func (d *mockDebugger) SingleStep(_ context.Context, tid uint64) error {
	return d.record(sentCommand{command: constants.SingleStepCommand, tid: tid})
}

func (d *mockDebugger) Detach(context.Context) error {
	return d.record(sentCommand{command: constants.DetachCommand})
}

func (d *mockDebugger) Terminate(context.Context) error {
	return d.record(sentCommand{command: constants.TerminateCommand})
}

func (d *mockDebugger) FileToMemory(address BreakpointAddress) RelocatedAddress {
	d.mutex.Lock()
	result := RelocatedAddress(address.Offset)
	if t, ok := d.translators[strings.ToLower(address.Module)]; ok {
		result = t.imageBase + RelocatedAddress(address.Offset-t.fileBase)
	}
	translated := d.translated
	d.mutex.Unlock()
	if translated != nil {
		translated(address)
	}
	return result
}

func (d *mockDebugger) onTranslate(f func(address BreakpointAddress)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.translated = f
}

func (d *mockDebugger) MemoryToFile(address RelocatedAddress) BreakpointAddress {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	var module string
	var best translator
	found := false
	for name, t := range d.translators {
		if t.imageBase <= address && (!found || t.imageBase > best.imageBase) {
			module, best, found = name, t, true
		}
	}
	if !found {
		return NewBreakpointAddress("", uint64(address))
	}
	return NewBreakpointAddress(module, uint64(address-best.imageBase)+best.fileBase)
}

func (d *mockDebugger) SetAddressTranslator(module string, fileBase uint64, imageBase RelocatedAddress) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.translators[strings.ToLower(module)] = translator{fileBase: fileBase, imageBase: imageBase}
}

func (d *mockDebugger) RemoveAddressTranslator(module string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	delete(d.translators, strings.ToLower(module))
}

func (d *mockDebugger) SetTerminated() {
	d.setConnected(false)
}
