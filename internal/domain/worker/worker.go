package worker

import (
	"errors"
	"maps"
	"strings"
	"time"
)

// Attrs is a JSON-friendly bag for vehicle attributes (plate, make, model, color, etc.).
type Attrs map[string]any

// Worker is the domain entity corresponding to the `workers` table.
type Worker struct {
	// Identity & audit
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Profile
	Name         string
	Phone        string
	Kind         Kind
	VehicleAttrs Attrs

	// KPIs
	Rating        float64
	TotalTrips    int
	TotalEarnings float64

	// Operational state. A worker only receives new-request broadcasts while
	// both available and approved.
	Available bool
	Approved  bool
}

var (
	ErrIDRequired     = errors.New("worker id is required")
	ErrNameRequired   = errors.New("worker name is required")
	ErrNegativeTotals = errors.New("totals cannot be negative")
)

// NewWorker creates a Worker with sane defaults: offline and unapproved until
// an operator flips the flags.
func NewWorker(id, name, phone string, kind Kind, attrs Attrs) (*Worker, error) {
	if id = strings.TrimSpace(id); id == "" {
		return nil, ErrIDRequired
	}
	if name = strings.TrimSpace(name); name == "" {
		return nil, ErrNameRequired
	}
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}

	now := time.Now().UTC()
	return &Worker{
		ID:           id,
		CreatedAt:    now,
		UpdatedAt:    now,
		Name:         name,
		Phone:        strings.TrimSpace(phone),
		Kind:         kind,
		VehicleAttrs: cloneAttrs(attrs),
		Rating:       5.0,
		Available:    false,
		Approved:     false,
	}, nil
}

// Eligible reports whether the worker may see new-request broadcasts at all;
// the per-route blacklist is applied separately at query time.
func (w *Worker) Eligible() bool {
	return w.Available && w.Approved
}

// ApplyEarnings increments counters after a trip settlement.
func (w *Worker) ApplyEarnings(tripsDelta int, earningsDelta float64) error {
	if tripsDelta < 0 || earningsDelta < 0 {
		return ErrNegativeTotals
	}
	w.TotalTrips += tripsDelta
	w.TotalEarnings += earningsDelta
	w.touch()
	return nil
}

// SetAvailable flips broadcast availability.
func (w *Worker) SetAvailable(available bool) {
	w.Available = available
	w.touch()
}

// ---- internal helpers ----

func (w *Worker) touch() {
	w.UpdatedAt = time.Now().UTC()
}

func cloneAttrs(in Attrs) Attrs {
	if in == nil {
		return nil
	}
	out := make(Attrs, len(in))
	maps.Copy(out, in)
	return out
}
