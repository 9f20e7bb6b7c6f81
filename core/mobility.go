package core

import "github.com/signalsfoundry/fso-downlink/kb"

// ConstantPositionMobility is a terminal that never moves.
type ConstantPositionMobility struct {
	Pos Vec3
}

// Position implements Mobility.
func (m *ConstantPositionMobility) Position() Vec3 { return m.Pos }

// PlatformMobility reads the position of a platform from the knowledge base,
// so it follows whatever the motion tracker last pushed.
type PlatformMobility struct {
	store      *kb.KnowledgeBase
	platformID string
}

// NewPlatformMobility binds a terminal to a platform.
func NewPlatformMobility(store *kb.KnowledgeBase, platformID string) *PlatformMobility {
	return &PlatformMobility{store: store, platformID: platformID}
}

// Position implements Mobility. Unknown platforms sit at the origin.
func (m *PlatformMobility) Position() Vec3 {
	pos, _ := m.store.PlatformPosition(m.platformID)
	return VecFromMotion(pos)
}
