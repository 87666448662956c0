// Package app wires the dashboard's long-lived components together and
// supervises their lifetimes: the Store, the form registry, the
// telemetry Hub and its producers, the LDX watcher, and the HTTP/WebSocket
// server.
package app

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fsae-team/daqserver/internal/auth"
	"github.com/fsae-team/daqserver/internal/config"
	"github.com/fsae-team/daqserver/internal/formregistry"
	"github.com/fsae-team/daqserver/internal/ldxwatcher"
	"github.com/fsae-team/daqserver/internal/store"
	"github.com/fsae-team/daqserver/internal/telemetry/hub"
	"github.com/fsae-team/daqserver/internal/telemetry/source"
	"github.com/fsae-team/daqserver/internal/valueservice"
	"github.com/fsae-team/daqserver/internal/web"
)

// shutdownGrace bounds how long the HTTP server and its long-lived
// components get to wind down once shutdown begins.
const shutdownGrace = 5 * time.Second

// defaultSensors seeds the telemetry channel catalog the first time the
// store is opened with an empty sensor table. Teams are expected to
// adjust ranges and add channels through the admin sensors endpoint once
// running; this set just gets the dashboard displaying something sane
// out of the box.
var defaultSensors = []store.Sensor{
	{SensorID: "rpm", Name: "Engine RPM", Unit: "rpm", MinValue: 0, MaxValue: 9000, Group: "Powertrain", SortOrder: 0, Enabled: true},
	{SensorID: "coolant_temp", Name: "Coolant Temp", Unit: "°C", MinValue: 20, MaxValue: 120, Group: "Powertrain", SortOrder: 1, Enabled: true},
	{SensorID: "oil_pressure", Name: "Oil Pressure", Unit: "psi", MinValue: 0, MaxValue: 100, Group: "Powertrain", SortOrder: 2, Enabled: true},
	{SensorID: "throttle", Name: "Throttle Position", Unit: "%", MinValue: 0, MaxValue: 100, Group: "Powertrain", SortOrder: 3, Enabled: true},
	{SensorID: "battery_voltage", Name: "Battery Voltage", Unit: "V", MinValue: 10, MaxValue: 14, Group: "Electronics", SortOrder: 4, Enabled: true},
	{SensorID: "wheel_speed_fl", Name: "Wheel Speed FL", Unit: "km/h", MinValue: 0, MaxValue: 140, Group: "Chassis", SortOrder: 5, Enabled: true},
	{SensorID: "wheel_speed_fr", Name: "Wheel Speed FR", Unit: "km/h", MinValue: 0, MaxValue: 140, Group: "Chassis", SortOrder: 6, Enabled: true},
	{SensorID: "brake_pressure_f", Name: "Brake Pressure Front", Unit: "bar", MinValue: 0, MaxValue: 80, Group: "Chassis", SortOrder: 7, Enabled: true},
	{SensorID: "lateral_g", Name: "Lateral G", Unit: "g", MinValue: -3, MaxValue: 3, Group: "Chassis", SortOrder: 8, Enabled: true},
	{SensorID: "suspension_travel_fl", Name: "Suspension Travel FL", Unit: "mm", MinValue: 0, MaxValue: 50, Group: "Suspension", SortOrder: 9, Enabled: true},
}

// App owns every long-lived component and supervises their goroutines.
type App struct {
	cfg    *config.Config
	store  *store.Store
	server *web.Server
}

// Boot performs the full startup sequence: open the store, run
// migrations, bootstrap the admin account and default sensors on an
// empty database, and construct every long-lived component. It does not
// start any goroutines; call Run for that.
func Boot(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	st, err := store.Open(filepath.Join(cfg.DataDir, "daqserver.db"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if err := auth.BootstrapAdmin(ctx, st, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		st.Close()
		return nil, err
	}
	if err := seedSensors(ctx, st); err != nil {
		st.Close()
		return nil, err
	}
	if err := seedWatchDir(ctx, st, cfg); err != nil {
		st.Close()
		return nil, err
	}

	registry, err := formregistry.Load(cfg.FormsDir)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load form registry: %w", err)
	}

	issuer := auth.NewIssuer(cfg.JWTSecret)
	values := valueservice.New(st, registry)
	watcher := ldxwatcher.New(st, registry)

	h := hub.New()
	serial := source.NewSerialSource(st)
	simulator := source.NewSimulator(st)
	selector := source.NewSelector(st, serial, simulator)

	srv := web.New(cfg, web.Deps{
		Store:     st,
		Issuer:    issuer,
		Registry:  registry,
		Values:    values,
		Watcher:   watcher,
		Hub:       h,
		Serial:    serial,
		Simulator: simulator,
		Selector:  selector,
	})

	return &App{
		cfg:    cfg,
		store:  st,
		server: srv,
	}, nil
}

// seedSensors populates the sensor catalog with a default set the first
// time the table is empty.
func seedSensors(ctx context.Context, st *store.Store) error {
	count, err := st.CountSensors(ctx)
	if err != nil {
		return fmt.Errorf("count sensors: %w", err)
	}
	if count > 0 {
		return nil
	}
	for _, sn := range defaultSensors {
		if err := st.UpsertSensor(ctx, sn); err != nil {
			return fmt.Errorf("seed sensor %q: %w", sn.SensorID, err)
		}
	}
	log.Printf("seeded %d default sensors", len(defaultSensors))
	return nil
}

// seedWatchDir sets the initial LDX watch directory from LDX_WATCH_DIR
// when WatchConfig has never been configured.
func seedWatchDir(ctx context.Context, st *store.Store, cfg *config.Config) error {
	if cfg.WatchDir == "" {
		return nil
	}
	existing, err := st.GetWatchConfig(ctx)
	if err != nil {
		return fmt.Errorf("get watch config: %w", err)
	}
	if existing != nil {
		return nil
	}
	return st.SetWatchConfig(ctx, cfg.WatchDir)
}

// Run starts every long-lived task and blocks until ctx is cancelled or
// one of them fails. On return every task has released its resources.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.server.Selector().Run(gctx) })
	g.Go(func() error { return a.server.Serial().Run(gctx, a.server.Hub()) })
	g.Go(func() error { return a.server.Simulator().Run(gctx, a.server.Hub()) })
	g.Go(func() error { return a.server.Watcher().Run(gctx) })

	g.Go(func() error {
		if err := a.server.Start(); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	a.store.Close()
	return err
}
