package dispositivos

import "sync"

// LAPIC lleva la cuenta de los EOI enviados por cada CPU
type LAPIC struct {
	mu   sync.Mutex
	acks map[int]uint64
}

func NewLAPIC() *LAPIC {
	return &LAPIC{acks: make(map[int]uint64)}
}

func (l *LAPIC) Reconocer(cpu int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.acks[cpu]++
}

func (l *LAPIC) Reconocidos(cpu int) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.acks[cpu]
}
