package core

import "fmt"

// PropagationStage is one physical effect in a propagation chain. A stage
// updates its own fields of the signal record; ApplyChain takes care of
// forwarding to the next stage.
type PropagationStage interface {
	Name() string
	// UpdateSignal applies this stage's contribution for a signal
	// travelling from tx to rx.
	UpdateSignal(rec *SignalRecord, tx, rx Vec3) error
	// AssignStreams fixes the random streams used by this stage starting at
	// stream and returns how many it consumed.
	AssignStreams(stream int64) int64
	SetNext(next PropagationStage)
	Next() PropagationStage
}

// stageLink supplies the next-stage link for stage implementations.
type stageLink struct {
	next PropagationStage
}

func (l *stageLink) SetNext(next PropagationStage) { l.next = next }
func (l *stageLink) Next() PropagationStage        { return l.next }

// AssignStreams is the default for deterministic stages.
func (l *stageLink) AssignStreams(int64) int64 { return 0 }

// ApplyChain runs rec through first and every stage linked after it.
func ApplyChain(first PropagationStage, rec *SignalRecord, tx, rx Vec3) error {
	for s := first; s != nil; s = s.Next() {
		if err := s.UpdateSignal(rec, tx, rx); err != nil {
			return fmt.Errorf("%s: %w", s.Name(), err)
		}
	}
	return nil
}

// AssignChainStreams assigns streams to first and its successors and
// returns the total consumed.
func AssignChainStreams(first PropagationStage, stream int64) int64 {
	if first == nil {
		return 0
	}
	n := first.AssignStreams(stream)
	return n + AssignChainStreams(first.Next(), stream+n)
}
