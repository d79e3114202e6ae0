package consensus

import (
	"errors"
	"sync"

	"gonum.org/v1/gonum/stat"

	"lpr-service/internal/domain/lpr"
)

var ErrNoPlateDetected = errors.New("no plate detected")

type entry struct {
	plate          string
	occurrences    int
	bestConfidence float64
	evidence       lpr.Frame
	firstSeen      int64
	confidences    []float64
}

// Aggregator accumulates accepted observations per canonical plate string.
// It is safe for concurrent use; each plate keeps the evidence frame with the
// highest plate-detection confidence seen so far.
type Aggregator struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []*entry
}

func NewAggregator() *Aggregator {
	return &Aggregator{entries: make(map[string]*entry)}
}

// Record counts one observation of plate. The evidence frame is replaced only
// when confidence is strictly greater than the stored one.
func (a *Aggregator) Record(plate string, frame lpr.Frame, confidence float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[plate]
	if !ok {
		e = &entry{
			plate:          plate,
			bestConfidence: confidence,
			evidence:       frame,
			firstSeen:      frame.Index,
		}
		a.entries[plate] = e
		a.order = append(a.order, e)
	} else if confidence > e.bestConfidence {
		e.bestConfidence = confidence
		e.evidence = frame
	}
	e.occurrences++
	e.confidences = append(e.confidences, confidence)
}

func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.order)
}

// Candidates returns a snapshot in first-seen order.
func (a *Aggregator) Candidates() []lpr.Candidate {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]lpr.Candidate, 0, len(a.order))
	for _, e := range a.order {
		out = append(out, e.candidate())
	}
	return out
}

// Winner selects the plate with the most occurrences. Ties go to the plate
// that was recorded first.
func (a *Aggregator) Winner() (lpr.ConsensusResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var best *entry
	for _, e := range a.order {
		if best == nil || e.occurrences > best.occurrences {
			best = e
		}
	}
	if best == nil {
		return lpr.ConsensusResult{}, ErrNoPlateDetected
	}

	return lpr.ConsensusResult{
		Plate:       best.plate,
		Occurrences: best.occurrences,
		Confidence:  best.bestConfidence,
		Evidence:    best.evidence,
	}, nil
}

func (e *entry) candidate() lpr.Candidate {
	return lpr.Candidate{
		Plate:          e.plate,
		Occurrences:    e.occurrences,
		BestConfidence: e.bestConfidence,
		MeanConfidence: stat.Mean(e.confidences, nil),
		BestFrame:      e.evidence.Index,
		FirstSeen:      e.firstSeen,
		Evidence:       e.evidence,
	}
}
