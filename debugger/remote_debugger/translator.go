package remote_debugger

import (
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	. "github.com/fansqz/remote-debugger/debugger"
	"strings"
	"sync"
)

type moduleBase struct {
	name      string
	fileBase  uint64
	imageBase RelocatedAddress
}

// addressTranslator 逻辑地址与运行时地址的转换，模块名称忽略大小写
type addressTranslator struct {
	lock    sync.RWMutex
	modules map[string]moduleBase
	// 加载基址 -> 模块，用于查找运行时地址所在的模块
	images *treemap.Map
}

func newAddressTranslator() *addressTranslator {
	return &addressTranslator{
		modules: map[string]moduleBase{},
		images:  treemap.NewWith(utils.UInt64Comparator),
	}
}

func (t *addressTranslator) set(module string, fileBase uint64, imageBase RelocatedAddress) {
	t.lock.Lock()
	defer t.lock.Unlock()
	key := strings.ToLower(module)
	if old, ok := t.modules[key]; ok {
		t.images.Remove(uint64(old.imageBase))
	}
	base := moduleBase{name: module, fileBase: fileBase, imageBase: imageBase}
	t.modules[key] = base
	t.images.Put(uint64(imageBase), base)
}

func (t *addressTranslator) remove(module string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	key := strings.ToLower(module)
	if old, ok := t.modules[key]; ok {
		t.images.Remove(uint64(old.imageBase))
		delete(t.modules, key)
	}
}

func (t *addressTranslator) clear() {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.modules = map[string]moduleBase{}
	t.images.Clear()
}

// fileToMemory 模块没有加载时按照绝对地址处理
func (t *addressTranslator) fileToMemory(address BreakpointAddress) RelocatedAddress {
	if address.Module == "" {
		return RelocatedAddress(address.Offset)
	}
	t.lock.RLock()
	defer t.lock.RUnlock()
	base, ok := t.modules[strings.ToLower(address.Module)]
	if !ok {
		return RelocatedAddress(address.Offset)
	}
	return base.imageBase + RelocatedAddress(address.Offset-base.fileBase)
}

// memoryToFile 使用基址不大于该地址的最近的模块
func (t *addressTranslator) memoryToFile(address RelocatedAddress) BreakpointAddress {
	t.lock.RLock()
	defer t.lock.RUnlock()
	_, value := t.images.Floor(uint64(address))
	if value == nil {
		return NewBreakpointAddress("", uint64(address))
	}
	base := value.(moduleBase)
	return NewBreakpointAddress(base.name, uint64(address-base.imageBase)+base.fileBase)
}
