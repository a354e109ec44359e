// Package state holds the single mutable aggregate shared across the core:
// loaded config, plate/metadata/flow lists, the hardware map, and the
// diagnostic queues named in §4.C. Every accessor is guarded by one coarse
// lock, mirroring the teacher's Device.mu sync.RWMutex pattern.
package state

import (
	"sync"

	"github.com/nenet-io/nenet-core/pkg/config"
	"github.com/nenet-io/nenet-core/pkg/hardware"
	"github.com/nenet-io/nenet-core/pkg/store"
	"github.com/nenet-io/nenet-core/pkg/util"
)

// HardwareEvent is a diagnostic record of a hardware-map-affecting change.
// The live data path does not queue across goroutines (handlers run
// synchronously per §5); this exists for testing and inspection hooks.
type HardwareEvent struct {
	ControllerID int
	Description  string
}

// NECMessage is a diagnostic record of a message exchanged with NEC.
type NECMessage struct {
	Direction string // "in" or "out"
	Payload   string
}

// Shared is the single owner of mutable runtime state (§4.C).
type Shared struct {
	mu sync.RWMutex

	Config config.Config

	Plates      []store.Plate
	PlateDict   map[int]store.Plate
	Metas       []store.MetaInfo
	Flows       []store.Flow
	Controllers map[int]*hardware.Control

	HardwareEvents []HardwareEvent
	NECMessages    []NECMessage
}

// New creates an empty Shared container.
func New() *Shared {
	return &Shared{
		PlateDict:   make(map[int]store.Plate),
		Controllers: make(map[int]*hardware.Control),
	}
}

// SetConfig stores the loaded configuration.
func (s *Shared) SetConfig(c config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Config = c
}

// GetConfig returns the currently loaded configuration.
func (s *Shared) GetConfig() config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Config
}

// SetLoaded installs the plates/metas/flows/controllers produced by startup
// (§4.H steps 4-5).
func (s *Shared) SetLoaded(plates []store.Plate, metas []store.MetaInfo, flows []store.Flow, controllers map[int]*hardware.Control) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Plates = plates
	s.PlateDict = make(map[int]store.Plate, len(plates))
	for _, p := range plates {
		s.PlateDict[p.PKID] = p
	}
	s.Metas = metas
	s.Flows = flows
	s.Controllers = controllers
}

// Meta returns a copy of the metadata row for id, if loaded.
func (s *Shared) Meta(id int) (store.MetaInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.Metas {
		if m.PKID == id {
			return m, true
		}
	}
	return store.MetaInfo{}, false
}

// AllMetas returns a snapshot copy of every loaded metadata row, suitable
// for building an md_in snapshot outside the lock.
func (s *Shared) AllMetas() []store.MetaInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.MetaInfo, len(s.Metas))
	copy(out, s.Metas)
	return out
}

// SetCurrentValue mutates the in-memory current_value for a metadata row and,
// when it routes to a DO or DI channel on a loaded controller, the
// corresponding hardware slot (§4.F "setValue application" steps i-iii).
// Returns false if the metadata id is unknown.
func (s *Shared) SetCurrentValue(id, value int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for i := range s.Metas {
		if s.Metas[i].PKID == id {
			s.Metas[i].CurrentValue = value
			found = true

			switch s.Metas[i].PlateTypeID {
			case hardware.PlateTypeDOChild:
				if ctrl, ok := s.Controllers[s.Metas[i].PlateControlID]; ok {
					if slot, ok := ctrl.AllDOValue[s.Metas[i].PlateHardAddr]; ok {
						slot[s.Metas[i].Tport] = value
					}
				}
			case hardware.PlateTypeDIChild:
				if ctrl, ok := s.Controllers[s.Metas[i].PlateControlID]; ok {
					if slot, ok := ctrl.AllDIValue[s.Metas[i].PlateHardAddr]; ok {
						slot[s.Metas[i].Tport] = value
					}
				}
			}
			break
		}
	}
	return found
}

// Controller returns the loaded controller for a given pk_id.
func (s *Shared) Controller(id int) (*hardware.Control, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.Controllers[id]
	return c, ok
}

// AllControllers returns a snapshot slice of every loaded controller.
func (s *Shared) AllControllers() []*hardware.Control {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*hardware.Control, 0, len(s.Controllers))
	for _, c := range s.Controllers {
		out = append(out, c)
	}
	return out
}

// RecordHardwareEvent appends a diagnostic hardware event.
func (s *Shared) RecordHardwareEvent(e HardwareEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.HardwareEvents = append(s.HardwareEvents, e)
}

// RecordNECMessage appends a diagnostic NEC message record.
func (s *Shared) RecordNECMessage(m NECMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NECMessages = append(s.NECMessages, m)
}

// ClearAll empties every list, dictionary, and queue (§4.C).
func (s *Shared) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Plates = nil
	s.PlateDict = make(map[int]store.Plate)
	s.Metas = nil
	s.Flows = nil
	s.Controllers = make(map[int]*hardware.Control)
	s.HardwareEvents = nil
	s.NECMessages = nil
}

// LogState emits a one-shot diagnostic line with the size of each container.
func (s *Shared) LogState(context string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	util.WithFields(map[string]interface{}{
		"context":     context,
		"plates":      len(s.Plates),
		"metas":       len(s.Metas),
		"flows":       len(s.Flows),
		"controllers": len(s.Controllers),
		"hw_events":   len(s.HardwareEvents),
		"nec_msgs":    len(s.NECMessages),
	}).Info("shared state snapshot")
}
