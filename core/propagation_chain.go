package core

import (
	"fmt"

	"github.com/signalsfoundry/fso-downlink/internal/logging"
)

// DefaultStageOrder is the stock downlink chain.
var DefaultStageOrder = []string{StageFreeSpaceLoss, StageMeanIrradiance, StageScintillationIndex}

// PropagationChain owns an ordered, linked list of stages.
type PropagationChain struct {
	stages []PropagationStage
}

// NewPropagationChain links stages in the given order.
func NewPropagationChain(stages ...PropagationStage) *PropagationChain {
	c := &PropagationChain{}
	for _, s := range stages {
		c.Append(s)
	}
	return c
}

// Append links s after the current tail.
func (c *PropagationChain) Append(s PropagationStage) {
	if n := len(c.stages); n > 0 {
		c.stages[n-1].SetNext(s)
	}
	s.SetNext(nil)
	c.stages = append(c.stages, s)
}

// Head returns the first stage, or nil for an empty chain.
func (c *PropagationChain) Head() PropagationStage {
	if len(c.stages) == 0 {
		return nil
	}
	return c.stages[0]
}

// Stages returns the stages in order.
func (c *PropagationChain) Stages() []PropagationStage {
	return append([]PropagationStage(nil), c.stages...)
}

// Len returns the number of stages.
func (c *PropagationChain) Len() int { return len(c.stages) }

// Apply runs rec through every stage.
func (c *PropagationChain) Apply(rec *SignalRecord, tx, rx Vec3) error {
	return ApplyChain(c.Head(), rec, tx, rx)
}

// AssignStreams assigns random streams along the chain.
func (c *PropagationChain) AssignStreams(stream int64) int64 {
	return AssignChainStreams(c.Head(), stream)
}

// StageConfig carries the parameters stages may need at construction.
type StageConfig struct {
	Profile     HufnagelValley
	FixedZenith *float64
	Logger      logging.Logger
}

// NewStage constructs a stage by configuration name.
func NewStage(name string, cfg StageConfig) (PropagationStage, error) {
	log := logging.OrNoop(cfg.Logger).With(logging.String("stage", name))
	switch name {
	case StageFreeSpaceLoss:
		return NewFreeSpaceLoss(log), nil
	case StageMeanIrradiance:
		return NewMeanIrradiance(log), nil
	case StageScintillationIndex:
		s := NewScintillationIndex(cfg.Profile, log)
		s.FixedZenith = cfg.FixedZenith
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, name)
	}
}

// BuildChain constructs a chain from stage names, in order.
func BuildChain(names []string, cfg StageConfig) (*PropagationChain, error) {
	c := NewPropagationChain()
	for _, name := range names {
		s, err := NewStage(name, cfg)
		if err != nil {
			return nil, err
		}
		c.Append(s)
	}
	return c, nil
}
