package process

import (
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	. "github.com/fansqz/remote-debugger/debugger"
	"sync"
)

// Memory 目标进程内存的本地缓存
// 按起始地址保存agent返回的内存块，相邻或重叠的块会合并
type Memory struct {
	lock   sync.RWMutex
	chunks *treemap.Map
}

func NewMemory() *Memory {
	return &Memory{chunks: treemap.NewWith(utils.UInt64Comparator)}
}

// Store 保存一段内存
func (m *Memory) Store(address RelocatedAddress, data []byte) {
	if len(data) == 0 {
		return
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	start := uint64(address)
	end := start + uint64(len(data))
	merged := make([]byte, len(data))
	copy(merged, data)

	// 与前一个块重叠或者相邻
	if key, value := m.chunks.Floor(start); key != nil {
		prevStart := key.(uint64)
		prev := value.([]byte)
		if prevStart+uint64(len(prev)) >= start {
			head := prev[:start-prevStart]
			if prevEnd := prevStart + uint64(len(prev)); prevEnd > end {
				merged = append(append(append([]byte{}, head...), merged...), prev[end-prevStart:]...)
				end = prevEnd
			} else {
				merged = append(append([]byte{}, head...), merged...)
			}
			m.chunks.Remove(prevStart)
			start = prevStart
		}
	}
	// 吞并之后的块
	for {
		key, value := m.chunks.Ceiling(start)
		if key == nil || key.(uint64) > end {
			break
		}
		nextStart := key.(uint64)
		next := value.([]byte)
		if nextEnd := nextStart + uint64(len(next)); nextEnd > end {
			merged = append(merged, next[end-nextStart:]...)
			end = nextEnd
		}
		m.chunks.Remove(nextStart)
	}
	m.chunks.Put(start, merged)
}

// Read 读取缓存中的内存，只有整段都在缓存中时才返回
func (m *Memory) Read(address RelocatedAddress, size uint64) ([]byte, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	start := uint64(address)
	key, value := m.chunks.Floor(start)
	if key == nil {
		return nil, false
	}
	chunkStart := key.(uint64)
	chunk := value.([]byte)
	chunkEnd := chunkStart + uint64(len(chunk))
	if start >= chunkEnd || size > chunkEnd-start {
		return nil, false
	}
	result := make([]byte, size)
	copy(result, chunk[start-chunkStart:])
	return result, true
}

// HasData 缓存中是否存在这一段内存
func (m *Memory) HasData(address RelocatedAddress, size uint64) bool {
	_, ok := m.Read(address, size)
	return ok
}

func (m *Memory) Clear() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.chunks.Clear()
}

func (m *Memory) IsEmpty() bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.chunks.Empty()
}
