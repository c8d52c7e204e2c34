package conditions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/mscrnt/homecards/pkg/broadcast"
	"github.com/mscrnt/homecards/pkg/card"
	"github.com/mscrnt/homecards/pkg/condition"
)

// SensorProbe returns temperature readings
type SensorProbe func(ctx context.Context) ([]host.TemperatureStat, error)

// Overheating shows a card while the hottest sensor is at or above the threshold
type Overheating struct {
	probe   SensorProbe
	celsius float64
	poll    time.Duration

	mu      sync.Mutex
	hottest host.TemperatureStat
}

func NewOverheating(celsius float64, poll time.Duration) *Overheating {
	return &Overheating{
		probe:   host.SensorsTemperaturesWithContext,
		celsius: celsius,
		poll:    poll,
	}
}

func (o *Overheating) ID() card.ID { return IDOverheating }

func (o *Overheating) IsDisplayable(ctx context.Context, sess *condition.Session) (bool, error) {
	_, ok, err := o.Check(ctx, sess)
	return ok, err
}

// Check reads the sensors once and builds the card from the hottest reading
func (o *Overheating) Check(ctx context.Context, _ *condition.Session) (card.Card, bool, error) {
	hottest, ok, err := o.read(ctx)
	if err != nil || !ok {
		return card.Card{}, false, err
	}

	o.mu.Lock()
	o.hottest = hottest
	o.mu.Unlock()

	if hottest.Temperature < o.celsius {
		return card.Card{}, false, nil
	}
	return o.cardFor(hottest), true, nil
}

// read returns the hottest plausible reading. Sensor drivers often report
// partial failures alongside valid data, so an error only counts when nothing
// usable came back.
func (o *Overheating) read(ctx context.Context) (host.TemperatureStat, bool, error) {
	temps, err := o.probe(ctx)

	var hottest host.TemperatureStat
	found := false
	for _, t := range temps {
		if t.Temperature <= 0 || t.Temperature > 150 {
			continue
		}
		if !found || t.Temperature > hottest.Temperature {
			hottest, found = t, true
		}
	}

	if !found && err != nil {
		return host.TemperatureStat{}, false, fmt.Errorf("failed to read sensors: %w", err)
	}
	return hottest, found, nil
}

func (o *Overheating) BuildCard() card.Card {
	o.mu.Lock()
	hottest := o.hottest
	o.mu.Unlock()
	return o.cardFor(hottest)
}

func (o *Overheating) cardFor(t host.TemperatureStat) card.Card {
	return card.NewBuilder(IDOverheating).
		Title("Device is overheating").
		Summary(fmt.Sprintf("%s reads %.0f°C. Performance may be throttled.", t.SensorKey, t.Temperature)).
		Icon("ic_thermostat").
		MetricsTag("condition_overheating").
		Build()
}

func (o *Overheating) Source() broadcast.Source {
	return broadcast.Poll("overheating", o.poll, func(ctx context.Context) (string, error) {
		hottest, ok, err := o.read(ctx)
		if err != nil {
			return "", err
		}
		return flag(ok && hottest.Temperature >= o.celsius), nil
	})
}
