package settings

import (
	"fmt"
	"sync"
)

// Parameter names accepted by the alert-parameters endpoint.
const (
	ParamPumpCavitationMultiplier = "pump_cavitation_multiplier"
	ParamSmallLeakageThreshold    = "small_leakage_excedents_threshold"
)

// Range bounds a tunable parameter.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Parameter is one tunable alert-detection threshold as exposed to the
// settings panel.
type Parameter struct {
	Value       float64 `json:"value"`
	Range       Range   `json:"range"`
	Description string  `json:"description"`
}

type definition struct {
	def         float64
	rng         Range
	description string
}

var definitions = map[string]definition{
	ParamPumpCavitationMultiplier: {
		def:         1.5,
		rng:         Range{Min: 1.4, Max: 2.0},
		description: "Multiplier for pump cavitation detection",
	},
	ParamSmallLeakageThreshold: {
		def:         0.3,
		rng:         Range{Min: 0.1, Max: 5.0},
		description: "Minimum leakage value for small leak detection",
	},
}

// Store holds the current alert-detection parameters. Values live for the
// process lifetime; the detection side reads them per evaluation.
type Store struct {
	mu     sync.RWMutex
	values map[string]float64
}

func NewStore() *Store {
	values := make(map[string]float64, len(definitions))
	for name, d := range definitions {
		values[name] = d.def
	}
	return &Store{values: values}
}

// All returns every parameter with its current value, range and description.
func (s *Store) All() map[string]Parameter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Parameter, len(definitions))
	for name, d := range definitions {
		out[name] = Parameter{
			Value:       s.values[name],
			Range:       d.rng,
			Description: d.description,
		}
	}
	return out
}

// Get returns the current value of one parameter.
func (s *Store) Get(name string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Update validates and applies the given parameter values. Unknown names
// and out-of-range values are rejected; an empty update is an error. On any
// rejection nothing is applied.
func (s *Store) Update(updates map[string]float64) (map[string]float64, error) {
	if len(updates) == 0 {
		return nil, fmt.Errorf("no valid parameters provided")
	}

	for name, value := range updates {
		d, ok := definitions[name]
		if !ok {
			return nil, fmt.Errorf("unknown parameter %q", name)
		}
		if value < d.rng.Min || value > d.rng.Max {
			return nil, fmt.Errorf("%s must be between %g and %g", name, d.rng.Min, d.rng.Max)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	applied := make(map[string]float64, len(updates))
	for name, value := range updates {
		s.values[name] = value
		applied[name] = value
	}
	return applied, nil
}
