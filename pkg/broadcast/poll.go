package broadcast

import (
	"context"
	"fmt"
	"time"
)

// Probe returns a fingerprint of the watched state. Two equal fingerprints mean
// nothing changed.
type Probe func(ctx context.Context) (string, error)

// Poll samples probe every interval and emits an event whenever the fingerprint
// differs from the previous successful sample. The first sample only sets the
// baseline. Probe errors are skipped.
func Poll(name string, interval time.Duration, probe Probe) Source {
	return Func(func(ctx context.Context) (<-chan Event, error) {
		if interval <= 0 {
			return nil, fmt.Errorf("poll %s: interval must be positive, got %s", name, interval)
		}
		if probe == nil {
			return nil, fmt.Errorf("poll %s: probe is nil", name)
		}

		out := make(chan Event)
		go func() {
			defer close(out)

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			last, err := probe(ctx)
			haveLast := err == nil

			for {
				select {
				case <-ctx.Done():
					return
				case now := <-ticker.C:
					fp, err := probe(ctx)
					if err != nil {
						continue
					}
					if haveLast && fp == last {
						continue
					}
					changed := haveLast
					last, haveLast = fp, true
					if !changed {
						continue
					}
					if !send(ctx, out, Event{Source: name, At: now, Detail: fp}) {
						return
					}
				}
			}
		}()
		return out, nil
	})
}
