package conditions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/mscrnt/homecards/pkg/broadcast"
	"github.com/mscrnt/homecards/pkg/card"
	"github.com/mscrnt/homecards/pkg/condition"
)

// UsageProbe returns filesystem usage for a mount point
type UsageProbe func(ctx context.Context, path string) (*disk.UsageStat, error)

// LowStorage suggests freeing space when a mount runs low. Once shown it keeps
// showing for the rest of the session so it does not flicker around the threshold.
type LowStorage struct {
	probe       UsageProbe
	mount       string
	freePercent float64
	poll        time.Duration

	mu   sync.Mutex
	last disk.UsageStat
}

// NewLowStorage creates the controller for mount
func NewLowStorage(mount string, freePercent float64, poll time.Duration) *LowStorage {
	return &LowStorage{
		probe:       disk.UsageWithContext,
		mount:       mount,
		freePercent: freePercent,
		poll:        poll,
	}
}

func (s *LowStorage) ID() card.ID { return IDLowStorage }

func (s *LowStorage) IsDisplayable(ctx context.Context, sess *condition.Session) (bool, error) {
	_, ok, err := s.Check(ctx, sess)
	return ok, err
}

// Check reads the usage once and builds the card from that reading
func (s *LowStorage) Check(ctx context.Context, sess *condition.Session) (card.Card, bool, error) {
	usage, err := s.probe(ctx, s.mount)
	if err != nil {
		return card.Card{}, false, fmt.Errorf("failed to read usage of %s: %w", s.mount, err)
	}

	s.mu.Lock()
	s.last = *usage
	s.mu.Unlock()

	show := false
	switch {
	case s.isLow(usage):
		if sess != nil {
			sess.SetKeepShowing(IDLowStorage, true)
		}
		show = true
	case sess != nil:
		show = sess.KeepShowing(IDLowStorage)
	}
	if !show {
		return card.Card{}, false, nil
	}
	return s.cardFor(*usage), true, nil
}

func (s *LowStorage) isLow(usage *disk.UsageStat) bool {
	if usage.Total == 0 {
		return false
	}
	return freePercent(usage) < s.freePercent
}

func freePercent(usage *disk.UsageStat) float64 {
	return float64(usage.Free) / float64(usage.Total) * 100
}

func (s *LowStorage) BuildCard() card.Card {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	return s.cardFor(last)
}

func (s *LowStorage) cardFor(usage disk.UsageStat) card.Card {
	return card.NewBuilder(IDLowStorage).
		Kind(card.KindSuggestion).
		Title("Storage space is running low").
		Summary(fmt.Sprintf("%s free of %s on %s", humanize.Bytes(usage.Free), humanize.Bytes(usage.Total), s.mount)).
		Icon("ic_storage").
		ActionLabel("Free up space").
		MetricsTag("suggestion_low_storage").
		Build()
}

func (s *LowStorage) Source() broadcast.Source {
	return broadcast.Poll("low_storage", s.poll, func(ctx context.Context) (string, error) {
		usage, err := s.probe(ctx, s.mount)
		if err != nil {
			return "", err
		}
		return flag(s.isLow(usage)), nil
	})
}
