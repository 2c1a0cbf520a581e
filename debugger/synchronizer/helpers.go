package synchronizer

import (
	. "github.com/fansqz/remote-debugger/debugger"
)

// IsBreakpointInsideModules 判断断点是否在已经加载的模块中
// 模块名称忽略大小写，地址范围两端都包含，没有模块的绝对地址总是可以设置
func IsBreakpointInsideModules(d Debugger, address BreakpointAddress, modules []MemoryModule) bool {
	if address.Module == "" {
		return true
	}
	relocated := d.FileToMemory(address)
	for _, module := range modules {
		if module.IsNamed(address.Module) && module.Contains(relocated) {
			return true
		}
	}
	return false
}

// partitionByModules 将地址分为在模块内和不在模块内两部分
func partitionByModules(d Debugger, addresses []BreakpointAddress, modules []MemoryModule) (inside, outside []BreakpointAddress) {
	for _, address := range addresses {
		if IsBreakpointInsideModules(d, address, modules) {
			inside = append(inside, address)
		} else {
			outside = append(outside, address)
		}
	}
	return inside, outside
}

func addressesOf(breakpoints []Breakpoint) []BreakpointAddress {
	addresses := make([]BreakpointAddress, 0, len(breakpoints))
	for _, bp := range breakpoints {
		addresses = append(addresses, bp.Address)
	}
	return addresses
}
