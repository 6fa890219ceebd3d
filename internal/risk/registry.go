package risk

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Strategy names accepted by NewStrategy.
const (
	NameSLOnly  = "trailing_sl_only"
	NameSLAndTP = "trailing_sl_and_tp"

	DefaultTheta = 0.5
	DefaultRho   = 1.0
)

// ErrUnknownStrategy is returned by NewStrategy for unregistered names.
var ErrUnknownStrategy = errors.New("unknown trailing strategy")

// Params tunes the TP bump. Nil fields take the defaults.
type Params struct {
	Theta *float64 `json:"theta,omitempty" yaml:"theta,omitempty"`
	Rho   *float64 `json:"rho,omitempty" yaml:"rho,omitempty"`
}

type factory func(Params) (Strategy, error)

var registry = map[string]factory{
	NameSLOnly: func(Params) (Strategy, error) { return SLOnly{}, nil },
	NameSLAndTP: func(p Params) (Strategy, error) {
		theta, rho := DefaultTheta, DefaultRho
		if p.Theta != nil {
			theta = *p.Theta
		}
		if p.Rho != nil {
			rho = *p.Rho
		}
		if math.IsNaN(theta) || theta < 0 || theta > 1 {
			return nil, fmt.Errorf("%w: theta must be within [0,1], got %v", ErrInvalidParams, theta)
		}
		if math.IsNaN(rho) || rho < 0 {
			return nil, fmt.Errorf("%w: rho must be >= 0, got %v", ErrInvalidParams, rho)
		}
		return SLAndTPBump{Theta: theta, Rho: rho}, nil
	},
}

// NewStrategy builds the strategy registered under name (case-insensitive).
// An empty name returns a nil Strategy, which selects the plain ratchet.
func NewStrategy(name string, p Params) (Strategy, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, nil
	}
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownStrategy, name, strings.Join(Names(), ", "))
	}
	return f(p)
}

// Names lists the registered strategy names in order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
