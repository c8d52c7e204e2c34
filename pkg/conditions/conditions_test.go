package conditions

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mscrnt/homecards/internal/config"
	"github.com/mscrnt/homecards/pkg/card"
	"github.com/mscrnt/homecards/pkg/condition"
)

func TestRegistryOrder(t *testing.T) {
	cfg := config.Default()
	cfg.Conditions.Offline.WatchFiles = nil

	controllers := Registry(cfg, zaptest.NewLogger(t))

	var ids []card.ID
	for _, c := range controllers {
		ids = append(ids, c.ID())
	}
	assert.Equal(t, []card.ID{IDOffline, IDBatterySaver, IDLowStorage, IDMemoryPressure, IDHighLoad, IDOverheating}, ids)

	for _, id := range ids {
		assert.Contains(t, Names, id)
	}

	_, err := condition.New(controllers)
	assert.NoError(t, err)
}

func TestRegistrySkipsDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Conditions.BatterySaver.Enabled = false
	cfg.Conditions.HighLoad.Enabled = false
	cfg.Conditions.Overheating.Enabled = false

	controllers := Registry(cfg, nil)

	require.Len(t, controllers, 3)
	assert.Equal(t, IDOffline, controllers[0].ID())
	assert.Equal(t, IDLowStorage, controllers[1].ID())
	assert.Equal(t, IDMemoryPressure, controllers[2].ID())
}

func TestExistingDropsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "resolv.conf")
	require.NoError(t, os.WriteFile(present, []byte("nameserver 127.0.0.1\n"), 0o644))

	got := existing([]string{present, filepath.Join(dir, "missing")}, zaptest.NewLogger(t))
	assert.Equal(t, []string{present}, got)
}

func TestOffline(t *testing.T) {
	tests := []struct {
		name   string
		ifaces net.InterfaceStatList
		want   bool
	}{
		{
			name: "ethernet up",
			ifaces: net.InterfaceStatList{
				{Name: "lo", Flags: []string{"up", "loopback"}, Addrs: net.InterfaceAddrList{{Addr: "127.0.0.1/8"}}},
				{Name: "eth0", Flags: []string{"up", "broadcast"}, Addrs: net.InterfaceAddrList{{Addr: "10.0.0.2/24"}}},
			},
			want: false,
		},
		{
			name: "only loopback",
			ifaces: net.InterfaceStatList{
				{Name: "lo", Flags: []string{"up", "loopback"}, Addrs: net.InterfaceAddrList{{Addr: "127.0.0.1/8"}}},
			},
			want: true,
		},
		{
			name: "up without address",
			ifaces: net.InterfaceStatList{
				{Name: "wlan0", Flags: []string{"up"}},
			},
			want: true,
		},
		{
			name: "down with address",
			ifaces: net.InterfaceStatList{
				{Name: "eth0", Flags: []string{"broadcast"}, Addrs: net.InterfaceAddrList{{Addr: "10.0.0.2/24"}}},
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOffline(nil, 0)
			o.probe = func(context.Context) (net.InterfaceStatList, error) { return tt.ifaces, nil }

			got, err := o.IsDisplayable(context.Background(), condition.NewSession())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOfflineProbeError(t *testing.T) {
	o := NewOffline(nil, 0)
	o.probe = func(context.Context) (net.InterfaceStatList, error) { return nil, errors.New("netlink") }

	_, err := o.IsDisplayable(context.Background(), condition.NewSession())
	assert.ErrorContains(t, err, "netlink")
}

func TestOfflineCard(t *testing.T) {
	c := NewOffline(nil, 0).BuildCard()
	assert.Equal(t, IDOffline, c.ID())
	assert.Equal(t, card.KindCondition, c.Kind())
	assert.True(t, c.HasAction())
}

func writeBattery(t *testing.T, dir, name, capacity, status string) {
	t.Helper()
	batDir := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(batDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(batDir, "capacity"), []byte(capacity+"\n"), 0o644))
	if status != "" {
		require.NoError(t, os.WriteFile(filepath.Join(batDir, "status"), []byte(status+"\n"), 0o644))
	}
}

func TestSysfsBatteries(t *testing.T) {
	dir := t.TempDir()
	writeBattery(t, dir, "BAT0", "42", "Discharging")
	writeBattery(t, dir, "BAT1", "97", "")
	writeBattery(t, dir, "BAT2", "garbage", "Full")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "AC"), 0o755))

	batts, err := SysfsBatteries(dir)(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []BatteryStatus{
		{Name: "BAT0", Percent: 42, Status: "Discharging"},
		{Name: "BAT1", Percent: 97, Status: "Unknown"},
	}, batts)
}

func TestBatterySaver(t *testing.T) {
	tests := []struct {
		name  string
		batts []BatteryStatus
		want  bool
	}{
		{name: "no battery", batts: nil, want: false},
		{name: "low and discharging", batts: []BatteryStatus{{Name: "BAT0", Percent: 15, Status: "Discharging"}}, want: true},
		{name: "low but charging", batts: []BatteryStatus{{Name: "BAT0", Percent: 15, Status: "Charging"}}, want: false},
		{name: "threshold is inclusive", batts: []BatteryStatus{{Name: "BAT0", Percent: 20, Status: "Discharging"}}, want: true},
		{
			name: "discharging battery wins over emptier charging one",
			batts: []BatteryStatus{
				{Name: "BAT0", Percent: 5, Status: "Charging"},
				{Name: "BAT1", Percent: 18, Status: "Discharging"},
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBatterySaver("", 20, 0)
			b.probe = func(context.Context) ([]BatteryStatus, error) { return tt.batts, nil }

			got, err := b.IsDisplayable(context.Background(), condition.NewSession())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBatterySaverCardNamesBattery(t *testing.T) {
	b := NewBatterySaver("", 20, 0)
	b.probe = func(context.Context) ([]BatteryStatus, error) {
		return []BatteryStatus{{Name: "BAT1", Percent: 12, Status: "Discharging"}}, nil
	}

	ok, err := b.IsDisplayable(context.Background(), condition.NewSession())
	require.NoError(t, err)
	require.True(t, ok)

	c := b.BuildCard()
	assert.Equal(t, IDBatterySaver, c.ID())
	assert.Contains(t, c.Summary(), "BAT1 at 12%")
}

func TestLowStorageKeepsShowingForSession(t *testing.T) {
	free := uint64(5)
	s := NewLowStorage("/data", 10, 0)
	s.probe = func(_ context.Context, path string) (*disk.UsageStat, error) {
		assert.Equal(t, "/data", path)
		return &disk.UsageStat{Path: path, Total: 100, Free: free}, nil
	}

	ctx := context.Background()
	sess := condition.NewSession()

	ok, err := s.IsDisplayable(ctx, sess)
	require.NoError(t, err)
	assert.True(t, ok)

	// Space recovered, but the card stays for this session.
	free = 50
	ok, err = s.IsDisplayable(ctx, sess)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsDisplayable(ctx, condition.NewSession())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLowStorageCard(t *testing.T) {
	s := NewLowStorage("/", 10, 0)
	s.probe = func(_ context.Context, path string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Path: path, Total: 100 * 1000 * 1000 * 1000, Free: 2 * 1000 * 1000 * 1000}, nil
	}

	_, err := s.IsDisplayable(context.Background(), nil)
	require.NoError(t, err)

	c := s.BuildCard()
	assert.Equal(t, card.KindSuggestion, c.Kind())
	assert.Equal(t, "2.0 GB free of 100 GB on /", c.Summary())
}

func TestLowStorageZeroTotal(t *testing.T) {
	s := NewLowStorage("/proc", 10, 0)
	s.probe = func(_ context.Context, path string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Path: path}, nil
	}

	ok, err := s.IsDisplayable(context.Background(), condition.NewSession())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryPressure(t *testing.T) {
	used := 95.0
	m := NewMemoryPressure(90, 0)
	m.probe = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Total: 8 << 30, Available: 400 << 20, UsedPercent: used}, nil
	}

	ok, err := m.IsDisplayable(context.Background(), condition.NewSession())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, m.BuildCard().Summary(), "95% of 8.0 GiB in use")

	used = 40
	ok, err = m.IsDisplayable(context.Background(), condition.NewSession())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHighLoad(t *testing.T) {
	tests := []struct {
		name   string
		sample LoadSample
		want   bool
	}{
		{name: "idle", sample: LoadSample{Load1: 0.5, CPUs: 4}, want: false},
		{name: "busy", sample: LoadSample{Load1: 8, CPUs: 4}, want: true},
		{name: "exactly at threshold", sample: LoadSample{Load1: 6, CPUs: 4}, want: true},
		{name: "unknown cpu count", sample: LoadSample{Load1: 2}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHighLoad(1.5, 0)
			h.probe = func(context.Context) (LoadSample, error) { return tt.sample, nil }

			got, err := h.IsDisplayable(context.Background(), condition.NewSession())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOverheating(t *testing.T) {
	tests := []struct {
		name    string
		temps   []host.TemperatureStat
		err     error
		want    bool
		wantErr bool
	}{
		{
			name:  "cool",
			temps: []host.TemperatureStat{{SensorKey: "coretemp", Temperature: 45}},
			want:  false,
		},
		{
			name: "hot core",
			temps: []host.TemperatureStat{
				{SensorKey: "acpitz", Temperature: 50},
				{SensorKey: "coretemp", Temperature: 91},
			},
			want: true,
		},
		{
			name:  "implausible readings ignored",
			temps: []host.TemperatureStat{{SensorKey: "bogus", Temperature: 255}, {SensorKey: "acpitz", Temperature: 40}},
			want:  false,
		},
		{
			name:  "partial failure with data",
			temps: []host.TemperatureStat{{SensorKey: "coretemp", Temperature: 88}},
			err:   errors.New("some sensors failed"),
			want:  true,
		},
		{
			name:  "no sensors",
			temps: nil,
			want:  false,
		},
		{
			name:    "failure without data",
			err:     errors.New("no hwmon"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOverheating(85, 0)
			o.probe = func(context.Context) ([]host.TemperatureStat, error) { return tt.temps, tt.err }

			got, err := o.IsDisplayable(context.Background(), condition.NewSession())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOverheatingCardNamesSensor(t *testing.T) {
	o := NewOverheating(85, 0)
	o.probe = func(context.Context) ([]host.TemperatureStat, error) {
		return []host.TemperatureStat{{SensorKey: "coretemp_package_id_0", Temperature: 96}}, nil
	}

	_, err := o.IsDisplayable(context.Background(), condition.NewSession())
	require.NoError(t, err)
	assert.Contains(t, o.BuildCard().Summary(), "coretemp_package_id_0 reads 96°C")
}
