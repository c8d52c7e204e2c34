package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts standard 5-field expressions and descriptors such as "@every 30s"
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCron reports whether spec is a usable refresh schedule
func ValidateCron(spec string) error {
	if _, err := cronParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return nil
}

// Cron emits an event on every tick of the cron schedule
func Cron(name, spec string) Source {
	return Func(func(ctx context.Context) (<-chan Event, error) {
		if err := ValidateCron(spec); err != nil {
			return nil, err
		}

		c := cron.New(cron.WithParser(cronParser))
		ticks := make(chan time.Time, 1)
		if _, err := c.AddFunc(spec, func() {
			select {
			case ticks <- time.Now():
			default:
				// Previous tick not consumed yet
			}
		}); err != nil {
			return nil, fmt.Errorf("cron %s: %w", name, err)
		}

		out := make(chan Event)
		c.Start()
		go func() {
			defer close(out)
			defer func() { <-c.Stop().Done() }()

			for {
				select {
				case <-ctx.Done():
					return
				case at := <-ticks:
					if !send(ctx, out, Event{Source: name, At: at, Detail: spec}) {
						return
					}
				}
			}
		}()
		return out, nil
	})
}
