package core

import (
	"fmt"
	"math"
	"sync"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/fso-downlink/model"
)

// GroundSite anchors the local east-north-up frame used for positions.
type GroundSite struct {
	LatitudeDeg  float64 `yaml:"latitude_deg"`
	LongitudeDeg float64 `yaml:"longitude_deg"`
	AltitudeM    float64 `yaml:"altitude_m"`
}

// MotionModel updates a platform's position for a given simulation time.
type MotionModel interface {
	UpdatePosition(simTime time.Time, p *model.PlatformDefinition) error
}

// StaticMotionModel leaves the platform's position unchanged.
type StaticMotionModel struct{}

// UpdatePosition for static motion does nothing.
func (m *StaticMotionModel) UpdatePosition(simTime time.Time, p *model.PlatformDefinition) error {
	return nil
}

// OrbitalSGP4MotionModel uses a TLE and SGP4 to place a satellite in the
// ground site's local frame.
type OrbitalSGP4MotionModel struct {
	sat  satellite.Satellite
	site GroundSite
}

// NewOrbitalModelFromTLE constructs an orbital model from TLE lines.
func NewOrbitalModelFromTLE(line1, line2 string, site GroundSite) *OrbitalSGP4MotionModel {
	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	return &OrbitalSGP4MotionModel{sat: sat, site: site}
}

// UpdatePosition propagates the satellite to simTime and stores its
// east-north-up offset from the site. Heights are measured from the site's
// tangent plane plus the site altitude.
// go-satellite works in kilometres and whole seconds; we store metres in the
// model and interpolate linearly inside the second.
func (m *OrbitalSGP4MotionModel) UpdatePosition(simTime time.Time, p *model.PlatformDefinition) error {
	simTime = simTime.UTC()
	whole := simTime.Truncate(time.Second)
	frac := simTime.Sub(whole).Seconds()

	posECI, err := m.propagate(whole, p.ID)
	if err != nil {
		return err
	}
	jd := julianDay(whole)
	if frac > 0 {
		next, err := m.propagate(whole.Add(time.Second), p.ID)
		if err != nil {
			return err
		}
		posECI = satellite.Vector3{
			X: posECI.X + frac*(next.X-posECI.X),
			Y: posECI.Y + frac*(next.Y-posECI.Y),
			Z: posECI.Z + frac*(next.Z-posECI.Z),
		}
		jd += frac / 86400
	}

	obs := satellite.LatLong{
		Latitude:  Radians(m.site.LatitudeDeg),
		Longitude: Radians(m.site.LongitudeDeg),
	}
	look := satellite.ECIToLookAngles(posECI, obs, m.site.AltitudeM/1000.0, jd)

	const kmToM = 1000.0
	rg := look.Rg * kmToM
	horiz := rg * math.Cos(look.El)
	p.Coordinates = model.Motion{
		X: horiz * math.Sin(look.Az),
		Y: horiz * math.Cos(look.Az),
		Z: m.site.AltitudeM + rg*math.Sin(look.El),
	}
	return nil
}

func (m *OrbitalSGP4MotionModel) propagate(t time.Time, id string) (satellite.Vector3, error) {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()
	pos, _ := satellite.Propagate(m.sat, year, int(month), day, hour, min, sec)
	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) {
		return pos, fmt.Errorf("sgp4 propagation failed for platform %q at %s", id, t.Format(time.RFC3339))
	}
	return pos, nil
}

func julianDay(t time.Time) float64 {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()
	return satellite.JDay(year, int(month), day, hour, min, sec)
}

// PositionUpdater receives propagated positions, typically the knowledge base.
type PositionUpdater interface {
	UpdatePlatformPosition(id string, pos model.Motion) error
}

// MotionTracker owns the motion model of every tracked platform and pushes
// fresh positions to an updater on each tick.
type MotionTracker struct {
	mu      sync.Mutex
	site    GroundSite
	updater PositionUpdater
	order   []string
	tracked map[string]*trackedPlatform
}

type trackedPlatform struct {
	def   model.PlatformDefinition
	model MotionModel
}

// MotionOption configures a MotionTracker.
type MotionOption func(*MotionTracker)

// WithPositionUpdater routes propagated positions to u.
func WithPositionUpdater(u PositionUpdater) MotionOption {
	return func(t *MotionTracker) { t.updater = u }
}

// WithGroundSite sets the frame origin for orbital platforms.
func WithGroundSite(site GroundSite) MotionOption {
	return func(t *MotionTracker) { t.site = site }
}

// NewMotionTracker returns an empty tracker.
func NewMotionTracker(opts ...MotionOption) *MotionTracker {
	t := &MotionTracker{tracked: make(map[string]*trackedPlatform)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewMotionModel chooses an appropriate MotionModel for the platform.
// MotionSourceTLE with both TLE lines uses SGP4, otherwise static.
func NewMotionModel(p *model.PlatformDefinition, site GroundSite) MotionModel {
	if p.MotionSource == model.MotionSourceTLE && p.TLE[0] != "" && p.TLE[1] != "" {
		return NewOrbitalModelFromTLE(p.TLE[0], p.TLE[1], site)
	}
	return &StaticMotionModel{}
}

// AddPlatform starts tracking p. Platforms update in insertion order.
func (t *MotionTracker) AddPlatform(p *model.PlatformDefinition) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.tracked[p.ID]; exists {
		return fmt.Errorf("platform %q already tracked", p.ID)
	}
	t.tracked[p.ID] = &trackedPlatform{def: *p, model: NewMotionModel(p, t.site)}
	t.order = append(t.order, p.ID)
	return nil
}

// RemovePlatform stops tracking id.
func (t *MotionTracker) RemovePlatform(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.tracked[id]; !ok {
		return fmt.Errorf("platform %q not tracked", id)
	}
	delete(t.tracked, id)
	for i, pid := range t.order {
		if pid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

// UpdatePositions propagates every tracked platform to simTime and forwards
// the result to the updater.
func (t *MotionTracker) UpdatePositions(simTime time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, id := range t.order {
		tp := t.tracked[id]
		if err := tp.model.UpdatePosition(simTime, &tp.def); err != nil {
			return err
		}
		if t.updater != nil {
			if err := t.updater.UpdatePlatformPosition(id, tp.def.Coordinates); err != nil {
				return fmt.Errorf("update position of %q: %w", id, err)
			}
		}
	}
	return nil
}
