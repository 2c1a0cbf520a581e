package breakpoint

import (
	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/fansqz/remote-debugger/constants"
	. "github.com/fansqz/remote-debugger/debugger"
)

type entry struct {
	breakpoint Breakpoint
	status     constants.BreakpointStatus
}

// storage 一种类型断点的存储，按地址唯一，保留插入顺序
type storage struct {
	entries *linkedhashmap.Map
}

func newStorage() *storage {
	return &storage{entries: linkedhashmap.New()}
}

func (s *storage) get(address BreakpointAddress) (*entry, bool) {
	value, ok := s.entries.Get(address)
	if !ok {
		return nil, false
	}
	return value.(*entry), true
}

func (s *storage) has(address BreakpointAddress) bool {
	_, ok := s.entries.Get(address)
	return ok
}

func (s *storage) put(e *entry) {
	s.entries.Put(e.breakpoint.Address, e)
}

func (s *storage) remove(address BreakpointAddress) (*entry, bool) {
	value, ok := s.entries.Get(address)
	if !ok {
		return nil, false
	}
	s.entries.Remove(address)
	return value.(*entry), true
}

func (s *storage) all() []*entry {
	values := s.entries.Values()
	result := make([]*entry, 0, len(values))
	for _, value := range values {
		result = append(result, value.(*entry))
	}
	return result
}

func (s *storage) size() int {
	return s.entries.Size()
}

func (s *storage) clear() []*entry {
	entries := s.all()
	s.entries.Clear()
	return entries
}
