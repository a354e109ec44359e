// Package hardware builds and holds the controller/channel tables derived
// from the loaded plate and metadata rows (§4.D).
package hardware

import (
	"github.com/nenet-io/nenet-core/pkg/store"
	"github.com/nenet-io/nenet-core/pkg/util"
)

// Plate type ids recognized in the data model (§3).
const (
	PlateTypeDOChild  = 3
	PlateTypeDIChild  = 4
	PlateTypeDOCtrl   = 2
	PlateTypeMixedCtrl = 5
)

const tportSlots = 16

// Control is one type-2/5 controller's identity and channel tables
// (= JFHardControl). Every hard_addr key maps to a fixed 16-slot vector,
// structurally enforcing the "always 16 slots" invariant.
type Control struct {
	PKID          int
	StationName   string
	IPAddr        string
	IPPort        int
	LoginName     string
	LoginPassword string
	PlateType     int

	AllDOIdMap map[int]*[tportSlots]int
	AllDOValue map[int]*[tportSlots]int
	AllDIIdMap map[int]*[tportSlots]int
	AllDIValue map[int]*[tportSlots]int
	AllMNdMap  map[int]*[tportSlots]int
}

func newControl(p store.Plate) *Control {
	ip := p.IPAddr
	port := p.IPPort
	return &Control{
		PKID:          p.PKID,
		StationName:   p.StationName,
		IPAddr:        ip,
		IPPort:        port,
		LoginName:     p.LoginName,
		LoginPassword: p.LoginPassword,
		PlateType:     p.PlateTypeID,
		AllDOIdMap:    make(map[int]*[tportSlots]int),
		AllDOValue:    make(map[int]*[tportSlots]int),
		AllDIIdMap:    make(map[int]*[tportSlots]int),
		AllDIValue:    make(map[int]*[tportSlots]int),
		AllMNdMap:     make(map[int]*[tportSlots]int),
	}
}

// BuildStats summarizes one Build call (§4.D "emit a single stats summary").
type BuildStats struct {
	Type2Count        int
	Type3Count        int
	Type4Count        int
	Type5Count        int
	OrphanChildren    int
	MappedDO          int
	MappedDI          int
	MappedMN          int
	SkippedBadTport   int
	SkippedMissingSlot int
}

// Build runs the three-phase algorithm in §4.D: controllers, then children,
// then metadata binding. Deterministic single pass over each input slice.
func Build(plates []store.Plate, metas []store.MetaInfo) (map[int]*Control, BuildStats) {
	controllers := make(map[int]*Control)
	var stats BuildStats

	// Phase 1: controllers.
	for _, p := range plates {
		if p.PlateTypeID != PlateTypeDOCtrl && p.PlateTypeID != PlateTypeMixedCtrl {
			continue
		}
		c := newControl(p)
		controllers[p.PKID] = c
		if p.PlateTypeID == PlateTypeDOCtrl {
			stats.Type2Count++
		} else {
			stats.Type5Count++
			if p.HardAddr > 0 {
				c.AllMNdMap[p.HardAddr] = &[tportSlots]int{}
			}
		}
	}

	// Phase 2: children.
	for _, p := range plates {
		if p.PlateTypeID != PlateTypeDOChild && p.PlateTypeID != PlateTypeDIChild {
			continue
		}
		parent, ok := controllers[p.PlateParentID]
		if !ok {
			stats.OrphanChildren++
			continue
		}
		if p.HardAddr <= 0 {
			continue
		}
		if p.PlateTypeID == PlateTypeDOChild {
			parent.AllDOIdMap[p.HardAddr] = &[tportSlots]int{}
			parent.AllDOValue[p.HardAddr] = &[tportSlots]int{}
			stats.Type3Count++
		} else {
			parent.AllDIIdMap[p.HardAddr] = &[tportSlots]int{}
			parent.AllDIValue[p.HardAddr] = &[tportSlots]int{}
			stats.Type4Count++
		}
	}

	// Phase 3: metadata binding.
	for _, m := range metas {
		switch m.PlateTypeID {
		case PlateTypeDOChild:
			ctrl, ok := controllers[m.PlateControlID]
			if !ok {
				stats.SkippedMissingSlot++
				continue
			}
			slot, ok := ctrl.AllDOIdMap[m.PlateHardAddr]
			if !ok {
				stats.SkippedMissingSlot++
				continue
			}
			if !validTport(m.Tport) {
				stats.SkippedBadTport++
				continue
			}
			slot[m.Tport] = m.PKID
			ctrl.AllDOValue[m.PlateHardAddr][m.Tport] = m.InitValue
			stats.MappedDO++
		case PlateTypeDIChild:
			ctrl, ok := controllers[m.PlateControlID]
			if !ok {
				stats.SkippedMissingSlot++
				continue
			}
			slot, ok := ctrl.AllDIIdMap[m.PlateHardAddr]
			if !ok {
				stats.SkippedMissingSlot++
				continue
			}
			if !validTport(m.Tport) {
				stats.SkippedBadTport++
				continue
			}
			slot[m.Tport] = m.PKID
			ctrl.AllDIValue[m.PlateHardAddr][m.Tport] = m.InitValue
			stats.MappedDI++
		case PlateTypeMixedCtrl:
			ctrl, ok := controllers[m.PlateID]
			if !ok {
				stats.SkippedMissingSlot++
				continue
			}
			slot, ok := ctrl.AllMNdMap[m.PlateHardAddr]
			if !ok {
				stats.SkippedMissingSlot++
				continue
			}
			if !validTport(m.Tport) {
				stats.SkippedBadTport++
				continue
			}
			slot[m.Tport] = m.PKID
			stats.MappedMN++
		}
	}

	util.WithFields(map[string]interface{}{
		"type2":          stats.Type2Count,
		"type3":          stats.Type3Count,
		"type4":          stats.Type4Count,
		"type5":          stats.Type5Count,
		"orphans":        stats.OrphanChildren,
		"mapped_do":      stats.MappedDO,
		"mapped_di":      stats.MappedDI,
		"mapped_mn":      stats.MappedMN,
		"skipped_slot":   stats.SkippedMissingSlot,
		"skipped_tport":  stats.SkippedBadTport,
	}).Info("hardware map build complete")

	return controllers, stats
}

func validTport(t int) bool {
	return t >= 0 && t < tportSlots
}
