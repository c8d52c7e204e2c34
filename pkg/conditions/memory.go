package conditions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/mscrnt/homecards/pkg/broadcast"
	"github.com/mscrnt/homecards/pkg/card"
	"github.com/mscrnt/homecards/pkg/condition"
)

// MemoryProbe returns virtual memory statistics
type MemoryProbe func(ctx context.Context) (*mem.VirtualMemoryStat, error)

// MemoryPressure shows a card while memory use is at or above the threshold
type MemoryPressure struct {
	probe       MemoryProbe
	usedPercent float64
	poll        time.Duration

	mu   sync.Mutex
	last mem.VirtualMemoryStat
}

func NewMemoryPressure(usedPercent float64, poll time.Duration) *MemoryPressure {
	return &MemoryPressure{
		probe:       mem.VirtualMemoryWithContext,
		usedPercent: usedPercent,
		poll:        poll,
	}
}

func (m *MemoryPressure) ID() card.ID { return IDMemoryPressure }

func (m *MemoryPressure) IsDisplayable(ctx context.Context, sess *condition.Session) (bool, error) {
	_, ok, err := m.Check(ctx, sess)
	return ok, err
}

// Check samples memory once and builds the card from that sample
func (m *MemoryPressure) Check(ctx context.Context, _ *condition.Session) (card.Card, bool, error) {
	vm, err := m.probe(ctx)
	if err != nil {
		return card.Card{}, false, fmt.Errorf("failed to read memory: %w", err)
	}

	m.mu.Lock()
	m.last = *vm
	m.mu.Unlock()

	if vm.UsedPercent < m.usedPercent {
		return card.Card{}, false, nil
	}
	return m.cardFor(*vm), true, nil
}

func (m *MemoryPressure) BuildCard() card.Card {
	m.mu.Lock()
	last := m.last
	m.mu.Unlock()
	return m.cardFor(last)
}

func (m *MemoryPressure) cardFor(vm mem.VirtualMemoryStat) card.Card {
	return card.NewBuilder(IDMemoryPressure).
		Title("Memory is almost full").
		Summary(fmt.Sprintf("%.0f%% of %s in use, %s available", vm.UsedPercent, humanize.IBytes(vm.Total), humanize.IBytes(vm.Available))).
		Icon("ic_memory").
		ActionLabel("See top processes").
		MetricsTag("condition_memory_pressure").
		Build()
}

func (m *MemoryPressure) Source() broadcast.Source {
	return broadcast.Poll("memory_pressure", m.poll, func(ctx context.Context) (string, error) {
		vm, err := m.probe(ctx)
		if err != nil {
			return "", err
		}
		return flag(vm.UsedPercent >= m.usedPercent), nil
	})
}
