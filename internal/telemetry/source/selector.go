package source

import (
	"context"
	"time"

	"github.com/fsae-team/daqserver/internal/store"
)

const selectorTick = 1 * time.Second

// staleAfter bounds how long a "connected" serial source gets to be
// treated as live before "auto" mode falls back to the simulator.
const staleAfter = 5 * time.Second

// Selector re-evaluates SourcePreference every second and toggles which
// producer is allowed to publish to the Hub. Both producers run
// continuously regardless of which is active, so the serial reader's
// liveness counters stay fresh for "auto" mode and a hand-back to either
// source resumes mid-stream instead of cold-starting.
type Selector struct {
	st        *store.Store
	serial    *SerialSource
	simulator *Simulator
}

// NewSelector creates a Selector backed by st's source_preference row and
// the two live producers it arbitrates between.
func NewSelector(st *store.Store, serial *SerialSource, simulator *Simulator) *Selector {
	return &Selector{st: st, serial: serial, simulator: simulator}
}

// Run re-evaluates and applies the active source once per second until
// ctx is cancelled.
func (sel *Selector) Run(ctx context.Context) error {
	ticker := time.NewTicker(selectorTick)
	defer ticker.Stop()
	for {
		sel.apply(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// apply resolves the current choice and toggles both producers to match
// it. A single frame's Source field flipping is the only signal a
// subscriber sees of the handoff.
func (sel *Selector) apply(ctx context.Context) {
	active := sel.Resolve(ctx)
	sel.serial.SetActive(active == "serial")
	sel.simulator.SetActive(active == "simulated")
}

// Resolve applies the selection rule and returns which source name is
// currently authoritative: "serial" if explicitly preferred, or if
// preference is "auto" and the serial reader is connected with a recent
// frame; "simulated" otherwise.
func (sel *Selector) Resolve(ctx context.Context) string {
	pref, err := sel.st.GetSourcePreference(ctx)
	if err != nil {
		pref = "auto"
	}

	switch pref {
	case "serial":
		return "serial"
	case "simulated":
		return "simulated"
	default: // auto
		stats := sel.serial.Stats()
		if sel.serial.State() == StateConnected &&
			time.Since(time.Unix(stats.LastFrameUnix, 0)) <= staleAfter {
			return "serial"
		}
		return "simulated"
	}
}
