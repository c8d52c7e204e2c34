// Package broadcast turns host state changes into streams of events.
//
// A Source is anything a controller can subscribe to: a poller sampling a probe,
// a file watcher, a cron schedule, or a fan-in of several of those. Every
// channel returned by Subscribe is closed once the subscription context ends.
package broadcast

import (
	"context"
	"sync"
	"time"
)

// Event is a single "state may have changed" notification
type Event struct {
	Source string
	At     time.Time
	Detail string
}

// Source produces events until the context passed to Subscribe is done
type Source interface {
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// Func adapts a plain function to the Source interface
type Func func(ctx context.Context) (<-chan Event, error)

// Subscribe calls f
func (f Func) Subscribe(ctx context.Context) (<-chan Event, error) {
	return f(ctx)
}

// send delivers ev unless ctx ends first
func send(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Merge fans several sources into one. Nil sources are skipped. If any
// subscription fails, the ones already started are torn down.
func Merge(sources ...Source) Source {
	var live []Source
	for _, s := range sources {
		if s != nil {
			live = append(live, s)
		}
	}
	return Func(func(ctx context.Context) (<-chan Event, error) {
		subCtx, cancel := context.WithCancel(ctx)

		chans := make([]<-chan Event, 0, len(live))
		for _, s := range live {
			ch, err := s.Subscribe(subCtx)
			if err != nil {
				cancel()
				// Drain the started ones so their goroutines can exit
				for _, c := range chans {
					for range c {
					}
				}
				return nil, err
			}
			chans = append(chans, ch)
		}

		out := make(chan Event)
		var wg sync.WaitGroup
		for _, ch := range chans {
			wg.Add(1)
			go func(ch <-chan Event) {
				defer wg.Done()
				for ev := range ch {
					// A failed send still drains ch until the inner source closes
					send(subCtx, out, ev)
				}
			}(ch)
		}
		go func() {
			wg.Wait()
			cancel()
			close(out)
		}()
		return out, nil
	})
}
