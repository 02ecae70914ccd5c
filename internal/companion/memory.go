package companion

import "sync"

// Memory is a process-local Switches collection. It backs tests and
// deployments that run without a broker; switches are plain booleans
// with no device behind them.
type Memory struct {
	mu       sync.Mutex
	switches map[string]*MemorySwitch
}

// NewMemory creates an empty in-process switch collection.
func NewMemory() *Memory {
	return &Memory{switches: make(map[string]*MemorySwitch)}
}

// Ensure returns the switch for a button, creating it off on first
// sight. Memory switches never fail.
func (m *Memory) Ensure(group, button string, position int) (Switch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := group + "/" + button
	sw, ok := m.switches[key]
	if !ok {
		sw = &MemorySwitch{position: position}
		m.switches[key] = sw
	} else if position > 0 {
		sw.setPosition(position)
	}
	return sw, nil
}

// Len reports how many switches exist across all groups.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.switches)
}

// MemorySwitch is a companion switch with no device behind it.
type MemorySwitch struct {
	mu       sync.Mutex
	on       bool
	position int
}

func (s *MemorySwitch) IsOn() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.on, nil
}

func (s *MemorySwitch) TurnOn() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.on = true
	return nil
}

func (s *MemorySwitch) TurnOff() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.on = false
	return nil
}

// Position reports the 1-based slot the switch was last ensured at.
func (s *MemorySwitch) Position() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

func (s *MemorySwitch) setPosition(p int) {
	s.mu.Lock()
	s.position = p
	s.mu.Unlock()
}
