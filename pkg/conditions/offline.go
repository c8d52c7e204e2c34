package conditions

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/net"

	"github.com/mscrnt/homecards/pkg/broadcast"
	"github.com/mscrnt/homecards/pkg/card"
	"github.com/mscrnt/homecards/pkg/condition"
)

// InterfaceProbe lists the host network interfaces
type InterfaceProbe func(ctx context.Context) (net.InterfaceStatList, error)

// Offline shows a card while no network interface can carry traffic
type Offline struct {
	probe      InterfaceProbe
	watchFiles []string
	poll       time.Duration
}

// NewOffline creates the controller. watchFiles change when the network does,
// e.g. /etc/resolv.conf.
func NewOffline(watchFiles []string, poll time.Duration) *Offline {
	return &Offline{
		probe:      net.InterfacesWithContext,
		watchFiles: watchFiles,
		poll:       poll,
	}
}

func (o *Offline) ID() card.ID { return IDOffline }

// IsDisplayable reports true when no interface is usable
func (o *Offline) IsDisplayable(ctx context.Context, _ *condition.Session) (bool, error) {
	usable, err := o.usableInterfaces(ctx)
	if err != nil {
		return false, err
	}
	return len(usable) == 0, nil
}

func (o *Offline) BuildCard() card.Card {
	return card.NewBuilder(IDOffline).
		Title("You're offline").
		Summary("No network interface is up. Network features are unavailable.").
		Icon("ic_signal_off").
		ActionLabel("Network settings").
		MetricsTag("condition_offline").
		Build()
}

func (o *Offline) Source() broadcast.Source {
	poll := broadcast.Poll("offline", o.poll, func(ctx context.Context) (string, error) {
		usable, err := o.usableInterfaces(ctx)
		if err != nil {
			return "", err
		}
		return strings.Join(usable, ","), nil
	})
	if len(o.watchFiles) == 0 {
		return poll
	}
	return broadcast.Merge(poll, broadcast.Watch("offline-files", o.watchFiles...))
}

// usableInterfaces returns the sorted names of interfaces that are up, not
// loopback, and hold an address
func (o *Offline) usableInterfaces(ctx context.Context) ([]string, error) {
	ifaces, err := o.probe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	var usable []string
	for _, iface := range ifaces {
		if !hasFlag(iface.Flags, "up") || hasFlag(iface.Flags, "loopback") {
			continue
		}
		if len(iface.Addrs) == 0 {
			continue
		}
		usable = append(usable, iface.Name)
	}
	sort.Strings(usable)
	return usable, nil
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}
