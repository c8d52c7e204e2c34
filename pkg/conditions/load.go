package conditions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"

	"github.com/mscrnt/homecards/pkg/broadcast"
	"github.com/mscrnt/homecards/pkg/card"
	"github.com/mscrnt/homecards/pkg/condition"
)

// LoadSample is the 1-minute load average and the logical CPU count it is judged against
type LoadSample struct {
	Load1 float64
	CPUs  int
}

// PerCPU returns the load average divided by the CPU count
func (s LoadSample) PerCPU() float64 {
	if s.CPUs <= 0 {
		return s.Load1
	}
	return s.Load1 / float64(s.CPUs)
}

// LoadProbe samples the system load
type LoadProbe func(ctx context.Context) (LoadSample, error)

func hostLoad(ctx context.Context) (LoadSample, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return LoadSample{}, fmt.Errorf("failed to read load average: %w", err)
	}
	cpus, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return LoadSample{}, fmt.Errorf("failed to count CPUs: %w", err)
	}
	return LoadSample{Load1: avg.Load1, CPUs: cpus}, nil
}

// HighLoad shows a card while the load per CPU is at or above the threshold
type HighLoad struct {
	probe  LoadProbe
	perCPU float64
	poll   time.Duration

	mu   sync.Mutex
	last LoadSample
}

func NewHighLoad(perCPU float64, poll time.Duration) *HighLoad {
	return &HighLoad{
		probe:  hostLoad,
		perCPU: perCPU,
		poll:   poll,
	}
}

func (h *HighLoad) ID() card.ID { return IDHighLoad }

func (h *HighLoad) IsDisplayable(ctx context.Context, sess *condition.Session) (bool, error) {
	_, ok, err := h.Check(ctx, sess)
	return ok, err
}

// Check samples the load once and builds the card from that sample
func (h *HighLoad) Check(ctx context.Context, _ *condition.Session) (card.Card, bool, error) {
	sample, err := h.probe(ctx)
	if err != nil {
		return card.Card{}, false, err
	}

	h.mu.Lock()
	h.last = sample
	h.mu.Unlock()

	if sample.PerCPU() < h.perCPU {
		return card.Card{}, false, nil
	}
	return h.cardFor(sample), true, nil
}

func (h *HighLoad) BuildCard() card.Card {
	h.mu.Lock()
	last := h.last
	h.mu.Unlock()
	return h.cardFor(last)
}

func (h *HighLoad) cardFor(sample LoadSample) card.Card {
	return card.NewBuilder(IDHighLoad).
		Title("System is under heavy load").
		Summary(fmt.Sprintf("Load average %.2f across %d CPUs", sample.Load1, sample.CPUs)).
		Icon("ic_speed").
		MetricsTag("condition_high_load").
		Build()
}

func (h *HighLoad) Source() broadcast.Source {
	return broadcast.Poll("high_load", h.poll, func(ctx context.Context) (string, error) {
		sample, err := h.probe(ctx)
		if err != nil {
			return "", err
		}
		return flag(sample.PerCPU() >= h.perCPU), nil
	})
}
