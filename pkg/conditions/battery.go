package conditions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mscrnt/homecards/pkg/broadcast"
	"github.com/mscrnt/homecards/pkg/card"
	"github.com/mscrnt/homecards/pkg/condition"
)

// BatteryStatus is one battery as reported by the power supply class
type BatteryStatus struct {
	Name    string
	Percent float64
	Status  string // Charging, Discharging, Full, Not charging, Unknown
}

// Discharging reports whether the battery is draining
func (b BatteryStatus) Discharging() bool {
	return strings.EqualFold(b.Status, "Discharging")
}

// BatteryProbe lists the batteries present on the host
type BatteryProbe func(ctx context.Context) ([]BatteryStatus, error)

// SysfsBatteries reads BAT* entries below a power_supply directory
func SysfsBatteries(dir string) BatteryProbe {
	return func(ctx context.Context) ([]BatteryStatus, error) {
		matches, err := filepath.Glob(filepath.Join(dir, "BAT*", "capacity"))
		if err != nil {
			return nil, fmt.Errorf("failed to list batteries: %w", err)
		}

		var batts []BatteryStatus
		for _, capFile := range matches {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			capData, err := os.ReadFile(capFile)
			if err != nil {
				continue
			}
			percent, err := strconv.ParseFloat(strings.TrimSpace(string(capData)), 64)
			if err != nil {
				continue
			}
			batDir := filepath.Dir(capFile)
			statusData, _ := os.ReadFile(filepath.Join(batDir, "status"))
			status := strings.TrimSpace(string(statusData))
			if status == "" {
				status = "Unknown"
			}
			batts = append(batts, BatteryStatus{
				Name:    filepath.Base(batDir),
				Percent: percent,
				Status:  status,
			})
		}
		return batts, nil
	}
}

// BatterySaver shows a card while a battery is discharging at or below the threshold
type BatterySaver struct {
	probe     BatteryProbe
	threshold float64
	poll      time.Duration

	mu   sync.Mutex
	last BatteryStatus
}

// NewBatterySaver creates the controller reading from powerSupplyDir
func NewBatterySaver(powerSupplyDir string, thresholdPercent float64, poll time.Duration) *BatterySaver {
	return &BatterySaver{
		probe:     SysfsBatteries(powerSupplyDir),
		threshold: thresholdPercent,
		poll:      poll,
	}
}

func (b *BatterySaver) ID() card.ID { return IDBatterySaver }

// IsDisplayable reports whether any battery is low and discharging. Hosts
// without a battery never show the card.
func (b *BatterySaver) IsDisplayable(ctx context.Context, sess *condition.Session) (bool, error) {
	_, ok, err := b.Check(ctx, sess)
	return ok, err
}

// Check reads the batteries once and builds the card from that reading
func (b *BatterySaver) Check(ctx context.Context, _ *condition.Session) (card.Card, bool, error) {
	low, ok, err := b.lowest(ctx)
	if err != nil || !ok {
		return card.Card{}, false, err
	}

	b.mu.Lock()
	b.last = low
	b.mu.Unlock()

	if !low.Discharging() || low.Percent > b.threshold {
		return card.Card{}, false, nil
	}
	return b.cardFor(low), true, nil
}

// lowest returns the discharging battery with the least charge, or the
// emptiest battery when none is discharging
func (b *BatterySaver) lowest(ctx context.Context) (BatteryStatus, bool, error) {
	batts, err := b.probe(ctx)
	if err != nil {
		return BatteryStatus{}, false, err
	}
	if len(batts) == 0 {
		return BatteryStatus{}, false, nil
	}

	best := batts[0]
	for _, bat := range batts[1:] {
		switch {
		case bat.Discharging() && !best.Discharging():
			best = bat
		case bat.Discharging() == best.Discharging() && bat.Percent < best.Percent:
			best = bat
		}
	}
	return best, true, nil
}

func (b *BatterySaver) BuildCard() card.Card {
	b.mu.Lock()
	last := b.last
	b.mu.Unlock()
	return b.cardFor(last)
}

func (b *BatterySaver) cardFor(bat BatteryStatus) card.Card {
	return card.NewBuilder(IDBatterySaver).
		Title("Battery is low").
		Summary(fmt.Sprintf("%s at %.0f%% and discharging. Reduce background work to save power.", bat.Name, bat.Percent)).
		Icon("ic_battery_saver").
		ActionLabel("Power settings").
		MetricsTag("condition_battery_saver").
		Build()
}

func (b *BatterySaver) Source() broadcast.Source {
	return broadcast.Poll("battery_saver", b.poll, func(ctx context.Context) (string, error) {
		low, ok, err := b.lowest(ctx)
		if err != nil {
			return "", err
		}
		if !ok {
			return "none", nil
		}
		return low.Status + "/" + flag(low.Percent <= b.threshold), nil
	})
}
