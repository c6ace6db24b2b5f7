package feed

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/narrator/internal/narration"
)

// Reports toggles the optional detailed reports. A disabled report's
// snapshot fields are always empty.
type Reports struct {
	Research  bool
	Resources bool
	Energy    bool
	Rooms     bool
}

// AllReports enables every report.
var AllReports = Reports{Research: true, Resources: true, Energy: true, Rooms: true}

// RecordKeeper holds the latest world state received on the feed. It
// implements narration.SnapshotSource. All methods are safe for concurrent
// use.
type RecordKeeper struct {
	mu      sync.RWMutex
	reports Reports
	window  WindowState
	data    SnapshotData
	gen     uint64
}

// NewRecordKeeper creates a keeper with no colony data. The initial window
// is the start screen.
func NewRecordKeeper(reports Reports) *RecordKeeper {
	return &RecordKeeper{reports: reports}
}

// SetReports replaces the report toggles.
func (k *RecordKeeper) SetReports(r Reports) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.reports = r
}

// SetWindow records the focused window.
func (k *RecordKeeper) SetWindow(w WindowState) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.window = w
}

// Update replaces the report data.
func (k *RecordKeeper) Update(d SnapshotData) {
	d.ColonyRoster = slices.Clone(d.ColonyRoster)
	k.mu.Lock()
	defer k.mu.Unlock()
	k.data = d
}

// Clear drops all colony data, e.g. after a detected game restart, and
// starts a new snapshot generation.
func (k *RecordKeeper) Clear() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.data = SnapshotData{}
	k.gen++
}

// Snapshot returns the current world view with disabled reports blanked.
// Colony data is kept across window changes so that a return to the start
// screen can be recognized as a restart.
func (k *RecordKeeper) Snapshot(context.Context) narration.Snapshot {
	k.mu.RLock()
	defer k.mu.RUnlock()

	kind, window := DetectContext(k.window)
	snap := narration.Snapshot{
		Context:       kind,
		Window:        window,
		Generation:    k.gen,
		ColonyRoster:  slices.Clone(k.data.ColonyRoster),
		ColonySetting: k.data.ColonySetting,
	}
	if snap.ColonySetting == "" {
		snap.ColonySetting = narration.UnsetColonySetting
	}
	if k.reports.Research {
		snap.ResearchSummary = k.data.ResearchSummary
	}
	if k.reports.Resources {
		snap.ResourceData = k.data.ResourceData
	}
	if k.reports.Energy {
		snap.EnergyStatus = k.data.EnergyStatus
		snap.EnergySummary = k.data.EnergySummary
	}
	if k.reports.Rooms {
		snap.RoomsSummary = k.data.RoomsSummary
	}
	return snap
}

var _ narration.SnapshotSource = (*RecordKeeper)(nil)
