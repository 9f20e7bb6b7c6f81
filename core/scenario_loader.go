// core/scenario_loader.go
package core

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/fso-downlink/kb"
	"github.com/signalsfoundry/fso-downlink/model"
)

// Elevation modes for the Greenwood time constant.
const (
	ElevationFixed     = "fixed"
	ElevationGeometric = "geometric"
)

// Scenario describes one downlink run. Zero-valued fields in a file keep the
// values from DefaultScenario.
type Scenario struct {
	Name string `yaml:"name"`
	Seed uint64 `yaml:"seed"`
	Run  uint64 `yaml:"run"`

	Start        time.Time     `yaml:"start"`
	Duration     time.Duration `yaml:"duration"`
	MobilityTick time.Duration `yaml:"mobility_tick"` // 0 disables position updates

	BitRate float64       `yaml:"bit_rate"` // bit/s
	Traffic TrafficConfig `yaml:"traffic"`

	PropagationStages []string         `yaml:"propagation_stages"`
	DelaySpeed        float64          `yaml:"delay_speed"` // m/s
	Turbulence        TurbulenceConfig `yaml:"turbulence"`
	ErrorModel        ErrorModelConfig `yaml:"error_model"`

	Laser    LaserAntenna     `yaml:"laser"`
	Receiver OpticalRxAntenna `yaml:"receiver"`

	GroundSite GroundSite       `yaml:"ground_site"`
	Platforms  []PlatformConfig `yaml:"platforms"`

	// Transmitter is the node ID of the sending terminal, Receivers the node
	// IDs of the ground terminals.
	Transmitter string   `yaml:"transmitter"`
	Receivers   []string `yaml:"receivers"`
}

// TrafficConfig is the periodic packet source on the transmitter.
type TrafficConfig struct {
	PacketSize int           `yaml:"packet_size"` // bytes
	Count      int           `yaml:"count"`
	Interval   time.Duration `yaml:"interval"`
	Offset     time.Duration `yaml:"offset"` // first packet after Start
}

// TurbulenceConfig holds the HV profile constants.
type TurbulenceConfig struct {
	GroundRefractiveIndex float64 `yaml:"ground_refractive_index"`
	WindSpeed             float64 `yaml:"wind_speed"`

	// FixedZenithDeg pins the scintillation zenith angle; unset derives it
	// from geometry.
	FixedZenithDeg *float64 `yaml:"fixed_zenith_deg"`
}

// Profile returns the configured HV profile.
func (t TurbulenceConfig) Profile() HufnagelValley {
	hv := DefaultHufnagelValley()
	hv.A = t.GroundRefractiveIndex
	hv.V = t.WindSpeed
	return hv
}

// ErrorModelConfig selects how the error model and the delivery decision
// behave.
type ErrorModelConfig struct {
	Elevation    string  `yaml:"elevation"` // ElevationFixed or ElevationGeometric
	ElevationDeg float64 `yaml:"elevation_deg"`

	// Decide draws a uniform variate per packet against the success
	// probability; otherwise every evaluated packet is delivered.
	Decide bool `yaml:"decide"`
}

// PlatformConfig is a platform and the terminal it carries.
type PlatformConfig struct {
	ID       string    `yaml:"id"`
	Name     string    `yaml:"name"`
	Type     string    `yaml:"type"` // SATELLITE or GROUND_STATION
	Node     string    `yaml:"node"`
	NoradID  uint32    `yaml:"norad_id"`
	TLE      []string  `yaml:"tle"` // two lines, selects SGP4 motion
	Position *Position `yaml:"position"`
}

// Position is a point in the ground site's east-north-up frame (m).
type Position struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// DefaultScenario returns a satellite 707 km directly above a ground station.
func DefaultScenario() *Scenario {
	laser := DefaultLaserAntenna()
	laser.PhaseFrontRadius = 707000
	laser.TxPowerDB = -1
	laser.GainDB = 116

	rx := DefaultOpticalRxAntenna()
	rx.ApertureDiameter = 0.318
	rx.ReceiverGainDB = 121.4

	return &Scenario{
		Name:         "downlink",
		Seed:         1,
		Run:          1,
		Start:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Duration:     time.Second,
		MobilityTick: time.Second,
		BitRate:      DefaultBitRate,
		Traffic: TrafficConfig{
			PacketSize: 1024,
			Count:      100,
			Interval:   10 * time.Millisecond,
		},
		PropagationStages: append([]string(nil), DefaultStageOrder...),
		DelaySpeed:        SpeedOfLight,
		Turbulence: TurbulenceConfig{
			GroundRefractiveIndex: DefaultGroundRefractiveIndex,
			WindSpeed:             DefaultWindSpeed,
		},
		ErrorModel: ErrorModelConfig{
			Elevation:    ElevationFixed,
			ElevationDeg: 60,
			Decide:       true,
		},
		Laser:    laser,
		Receiver: rx,
		Platforms: []PlatformConfig{
			{
				ID:       "sat-1",
				Name:     "Satellite",
				Type:     model.PlatformSatellite,
				Node:     "sat-1-lct",
				Position: &Position{Z: 707000},
			},
			{
				ID:       "gs-1",
				Name:     "Ground station",
				Type:     model.PlatformGroundStation,
				Node:     "gs-1-ogs",
				Position: &Position{},
			},
		},
		Transmitter: "sat-1-lct",
		Receivers:   []string{"gs-1-ogs"},
	}
}

// LoadScenario decodes a YAML scenario on top of DefaultScenario and
// validates it. Unknown keys are rejected.
func LoadScenario(r io.Reader) (*Scenario, error) {
	sc := DefaultScenario()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(sc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("LoadScenario: decode failed: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("LoadScenario: %w", err)
	}
	return sc, nil
}

// LoadScenarioFile reads a scenario from path.
func LoadScenarioFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()
	return LoadScenario(f)
}

// Validate reports the first inconsistency in the scenario.
func (sc *Scenario) Validate() error {
	if sc.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %s", sc.Duration)
	}
	if sc.MobilityTick < 0 {
		return fmt.Errorf("mobility tick must not be negative, got %s", sc.MobilityTick)
	}
	if !(sc.BitRate > 0) || math.IsInf(sc.BitRate, 0) {
		return fmt.Errorf("bit rate must be positive, got %g", sc.BitRate)
	}
	if sc.Traffic.PacketSize <= 0 {
		return fmt.Errorf("packet size must be positive, got %d", sc.Traffic.PacketSize)
	}
	if sc.Traffic.Count < 0 {
		return fmt.Errorf("packet count must not be negative, got %d", sc.Traffic.Count)
	}
	if sc.Traffic.Count > 1 && sc.Traffic.Interval <= 0 {
		return fmt.Errorf("packet interval must be positive, got %s", sc.Traffic.Interval)
	}
	if sc.Traffic.Offset < 0 {
		return fmt.Errorf("traffic offset must not be negative, got %s", sc.Traffic.Offset)
	}
	if len(sc.PropagationStages) == 0 {
		return errors.New("at least one propagation stage is required")
	}
	for _, name := range sc.PropagationStages {
		if _, err := NewStage(name, StageConfig{}); err != nil {
			return err
		}
	}
	if !(sc.DelaySpeed > 0) {
		return fmt.Errorf("delay speed must be positive, got %g", sc.DelaySpeed)
	}
	if sc.Turbulence.GroundRefractiveIndex < 0 || sc.Turbulence.WindSpeed < 0 {
		return errors.New("turbulence constants must not be negative")
	}
	if z := sc.Turbulence.FixedZenithDeg; z != nil && (*z < 0 || *z >= 90) {
		return fmt.Errorf("fixed zenith %g outside [0, 90) deg", *z)
	}
	switch sc.ErrorModel.Elevation {
	case ElevationFixed:
		if sc.ErrorModel.ElevationDeg <= 0 || sc.ErrorModel.ElevationDeg > 90 {
			return fmt.Errorf("elevation %g outside (0, 90] deg", sc.ErrorModel.ElevationDeg)
		}
	case ElevationGeometric:
	default:
		return fmt.Errorf("unknown elevation mode %q (want %s or %s)",
			sc.ErrorModel.Elevation, ElevationFixed, ElevationGeometric)
	}
	if err := sc.Laser.Validate(); err != nil {
		return err
	}
	if err := sc.Receiver.Validate(); err != nil {
		return err
	}
	return sc.validatePlatforms()
}

func (sc *Scenario) validatePlatforms() error {
	platforms := make(map[string]bool, len(sc.Platforms))
	nodes := make(map[string]bool, len(sc.Platforms))
	for i, p := range sc.Platforms {
		if p.ID == "" {
			return fmt.Errorf("platform %d has no id", i)
		}
		if platforms[p.ID] {
			return fmt.Errorf("duplicate platform id %q", p.ID)
		}
		platforms[p.ID] = true

		switch strings.ToUpper(p.Type) {
		case model.PlatformSatellite, model.PlatformGroundStation:
		default:
			return fmt.Errorf("platform %q: unknown type %q", p.ID, p.Type)
		}
		if len(p.TLE) != 0 && len(p.TLE) != 2 {
			return fmt.Errorf("platform %q: tle needs exactly two lines, got %d", p.ID, len(p.TLE))
		}
		if len(p.TLE) == 0 && p.Position == nil {
			return fmt.Errorf("platform %q: needs a position or a tle", p.ID)
		}
		if p.Node == "" {
			return fmt.Errorf("platform %q has no node", p.ID)
		}
		if nodes[p.Node] {
			return fmt.Errorf("duplicate node id %q", p.Node)
		}
		nodes[p.Node] = true
	}

	if !nodes[sc.Transmitter] {
		return fmt.Errorf("transmitter %q is not a configured node", sc.Transmitter)
	}
	if len(sc.Receivers) == 0 {
		return errors.New("at least one receiver is required")
	}
	for _, id := range sc.Receivers {
		if !nodes[id] {
			return fmt.Errorf("receiver %q is not a configured node", id)
		}
		if id == sc.Transmitter {
			return fmt.Errorf("node %q cannot both transmit and receive", id)
		}
	}
	return nil
}

// PlatformDefinitions converts the configured platforms.
func (sc *Scenario) PlatformDefinitions() []*model.PlatformDefinition {
	out := make([]*model.PlatformDefinition, 0, len(sc.Platforms))
	for _, pc := range sc.Platforms {
		p := &model.PlatformDefinition{
			ID:      pc.ID,
			Name:    pc.Name,
			Type:    strings.ToUpper(pc.Type),
			NoradID: pc.NoradID,
		}
		if pc.Position != nil {
			p.Coordinates = model.Motion{X: pc.Position.X, Y: pc.Position.Y, Z: pc.Position.Z}
		}
		if len(pc.TLE) == 2 {
			p.MotionSource = model.MotionSourceTLE
			p.TLE = [2]string{pc.TLE[0], pc.TLE[1]}
		}
		out = append(out, p)
	}
	return out
}

// Populate loads the scenario's platforms and nodes into store. Nodes are
// added transmitter first, then receivers in order, so event contexts follow
// that order.
func (sc *Scenario) Populate(store *kb.KnowledgeBase) error {
	if store == nil {
		return errors.New("Populate: knowledge base is nil")
	}
	nodePlatform := make(map[string]string, len(sc.Platforms))
	for i, p := range sc.PlatformDefinitions() {
		if err := store.AddPlatform(p); err != nil {
			return err
		}
		nodePlatform[sc.Platforms[i].Node] = p.ID
	}
	for _, id := range append([]string{sc.Transmitter}, sc.Receivers...) {
		n := &model.NetworkNode{ID: id, Name: id, PlatformID: nodePlatform[id]}
		if err := store.AddNetworkNode(n); err != nil {
			return err
		}
	}
	return nil
}
