package accessory

import "sync"

// deviceState is the cached device state read by framework gets.
// Both fields start false and are never persisted.
type deviceState struct {
	mu           sync.RWMutex
	switchStatus bool
	activeStatus bool
}

func (s *deviceState) switchOn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.switchStatus
}

func (s *deviceState) active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeStatus
}

// setSwitch stores the switch state and reports whether it changed.
func (s *deviceState) setSwitch(on bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.switchStatus != on
	s.switchStatus = on
	return changed
}

// setActive stores the activity state and reports whether it changed.
func (s *deviceState) setActive(active bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.activeStatus != active
	s.activeStatus = active
	return changed
}
