package utils

import "sync"

const (
	// Init 还没有连接agent
	Init = "init"
	// Connected 已经连接agent
	Connected = "connected"
	// Closed 连接已经关闭，不能再次使用
	Closed = "closed"
)

// StatusManager 记录连接的状态
type StatusManager struct {
	lock   sync.RWMutex
	status string
}

func NewStatusManager() *StatusManager {
	return &StatusManager{
		status: Init,
	}
}

func (s *StatusManager) Set(status string) {
	defer s.lock.Unlock()
	s.lock.Lock()
	s.status = status
}

// Transition 当前状态为from中的一个时修改为to，返回是否修改成功
func (s *StatusManager) Transition(to string, from ...string) bool {
	defer s.lock.Unlock()
	s.lock.Lock()
	for _, status := range from {
		if s.status == status {
			s.status = to
			return true
		}
	}
	return false
}

func (s *StatusManager) Get() string {
	defer s.lock.RUnlock()
	s.lock.RLock()
	return s.status
}

func (s *StatusManager) Is(statusList ...string) bool {
	defer s.lock.RUnlock()
	s.lock.RLock()
	for _, status := range statusList {
		if s.status == status {
			return true
		}
	}
	return false
}
