package hardware

import "testing"

import "github.com/nenet-io/nenet-core/pkg/store"

func TestBuildControllerIdentity(t *testing.T) {
	plates := []store.Plate{
		{PKID: 7, PlateTypeID: PlateTypeDOCtrl, IPAddr: "10.0.0.5", IPPort: 9000},
	}
	controllers, stats := Build(plates, nil)

	c, ok := controllers[7]
	if !ok {
		t.Fatalf("expected controller 7 to exist")
	}
	if c.IPAddr != "10.0.0.5" || c.IPPort != 9000 {
		t.Errorf("unexpected identity: %+v", c)
	}
	if stats.Type2Count != 1 {
		t.Errorf("Type2Count = %d, want 1", stats.Type2Count)
	}
}

func TestBuildOrphanChildIsCountedAndSkipped(t *testing.T) {
	plates := []store.Plate{
		{PKID: 3, PlateTypeID: PlateTypeDOChild, PlateParentID: 999, HardAddr: 1},
	}
	controllers, stats := Build(plates, nil)

	if len(controllers) != 0 {
		t.Fatalf("expected no controllers, got %d", len(controllers))
	}
	if stats.OrphanChildren != 1 {
		t.Errorf("OrphanChildren = %d, want 1", stats.OrphanChildren)
	}
}

func TestBuildChannelTablesAlwaysSixteenSlots(t *testing.T) {
	plates := []store.Plate{
		{PKID: 7, PlateTypeID: PlateTypeDOCtrl},
		{PKID: 8, PlateTypeID: PlateTypeDOChild, PlateParentID: 7, HardAddr: 2},
	}
	controllers, _ := Build(plates, nil)

	slot, ok := controllers[7].AllDOIdMap[2]
	if !ok {
		t.Fatalf("expected hard_addr 2 allocated")
	}
	if len(slot) != 16 {
		t.Errorf("slot length = %d, want 16", len(slot))
	}
}

func TestBuildMetadataBindingHappyPath(t *testing.T) {
	plates := []store.Plate{
		{PKID: 7, PlateTypeID: PlateTypeDOCtrl},
		{PKID: 8, PlateTypeID: PlateTypeDOChild, PlateParentID: 7, HardAddr: 2},
	}
	metas := []store.MetaInfo{
		{PKID: 42, PlateTypeID: PlateTypeDOChild, PlateControlID: 7, PlateHardAddr: 2, Tport: 5, InitValue: 0},
	}
	controllers, stats := Build(plates, metas)

	if got := controllers[7].AllDOIdMap[2][5]; got != 42 {
		t.Errorf("AllDOIdMap[2][5] = %d, want 42", got)
	}
	if stats.MappedDO != 1 {
		t.Errorf("MappedDO = %d, want 1", stats.MappedDO)
	}
}

func TestBuildMetadataOutOfRangeTportSkipped(t *testing.T) {
	plates := []store.Plate{
		{PKID: 7, PlateTypeID: PlateTypeDOCtrl},
		{PKID: 8, PlateTypeID: PlateTypeDOChild, PlateParentID: 7, HardAddr: 2},
	}
	metas := []store.MetaInfo{
		{PKID: 42, PlateTypeID: PlateTypeDOChild, PlateControlID: 7, PlateHardAddr: 2, Tport: 16},
	}
	_, stats := Build(plates, metas)

	if stats.MappedDO != 0 {
		t.Errorf("MappedDO = %d, want 0", stats.MappedDO)
	}
	if stats.SkippedBadTport != 1 {
		t.Errorf("SkippedBadTport = %d, want 1", stats.SkippedBadTport)
	}
	if stats.SkippedMissingSlot != 0 {
		t.Errorf("SkippedMissingSlot = %d, want 0 (hard_addr slot exists, only tport is bad)", stats.SkippedMissingSlot)
	}
}

func TestBuildMetadataMissingHardAddrSlotSkipped(t *testing.T) {
	plates := []store.Plate{
		{PKID: 7, PlateTypeID: PlateTypeDOCtrl},
		{PKID: 8, PlateTypeID: PlateTypeDOChild, PlateParentID: 7, HardAddr: 2},
	}
	metas := []store.MetaInfo{
		// hard_addr 9 was never allocated by a type-3 child, so the slot is missing
		// even though the tport itself is in range.
		{PKID: 42, PlateTypeID: PlateTypeDOChild, PlateControlID: 7, PlateHardAddr: 9, Tport: 5},
	}
	_, stats := Build(plates, metas)

	if stats.MappedDO != 0 {
		t.Errorf("MappedDO = %d, want 0", stats.MappedDO)
	}
	if stats.SkippedMissingSlot != 1 {
		t.Errorf("SkippedMissingSlot = %d, want 1", stats.SkippedMissingSlot)
	}
	if stats.SkippedBadTport != 0 {
		t.Errorf("SkippedBadTport = %d, want 0 (slot missing, not a tport problem)", stats.SkippedBadTport)
	}
}

func TestBuildType5PreallocatesMNdMap(t *testing.T) {
	plates := []store.Plate{
		{PKID: 9, PlateTypeID: PlateTypeMixedCtrl, HardAddr: 3},
	}
	controllers, _ := Build(plates, nil)

	if _, ok := controllers[9].AllMNdMap[3]; !ok {
		t.Errorf("expected AllMNdMap[3] to be pre-allocated for type-5 controller")
	}
}
