package sampler

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"github.com/emiliopalmerini/mtune/internal/domain"
)

// Sampler proposes parameter values. Sample returns the internal
// representation of a value drawn from dist.
type Sampler interface {
	Name() string
	Sample(name string, dist domain.Distribution) float64
}

// RandomSamplerName is the name accepted by New for RandomSampler.
const RandomSamplerName = "RandomSampler"

type randomKwargs struct {
	Seed *uint64 `json:"seed"`
}

// New builds the sampler called name. kwargs is a JSON object of
// constructor arguments and may be empty.
func New(name, kwargs string) (Sampler, error) {
	switch name {
	case "", RandomSamplerName:
		var args randomKwargs
		if strings.TrimSpace(kwargs) != "" {
			dec := json.NewDecoder(strings.NewReader(kwargs))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&args); err != nil {
				return nil, fmt.Errorf("invalid sampler kwargs for %s: %w", RandomSamplerName, err)
			}
		}
		return NewRandomSampler(args.Seed), nil
	}
	return nil, fmt.Errorf("unknown sampler %q: supported samplers are %s", name, strings.Join(Names(), ", "))
}

// Names lists the samplers New accepts.
func Names() []string {
	names := []string{RandomSamplerName}
	sort.Strings(names)
	return names
}

// RandomSampler draws every parameter independently and uniformly.
type RandomSampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSampler seeds the generator with seed, or randomly when nil.
func NewRandomSampler(seed *uint64) *RandomSampler {
	var s uint64
	if seed != nil {
		s = *seed
	} else {
		s = rand.Uint64()
	}
	return &RandomSampler{rng: rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))}
}

func (s *RandomSampler) Name() string { return RandomSamplerName }

func (s *RandomSampler) Sample(name string, dist domain.Distribution) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch d := dist.(type) {
	case *domain.FloatDistribution:
		return s.sampleFloat(d)
	case *domain.IntDistribution:
		return s.sampleInt(d)
	case *domain.CategoricalDistribution:
		return float64(s.rng.IntN(len(d.Choices)))
	}
	panic(fmt.Sprintf("sampler: unsupported distribution %T for %q", dist, name))
}

func (s *RandomSampler) sampleFloat(d *domain.FloatDistribution) float64 {
	if d.Single() {
		return d.Low
	}
	switch {
	case d.Log:
		v := math.Exp(math.Log(d.Low) + s.rng.Float64()*(math.Log(d.High)-math.Log(d.Low)))
		return math.Min(math.Max(v, d.Low), d.High)
	case d.Step != nil:
		n := int(math.Round((d.High - d.Low) / *d.Step))
		return d.Low + float64(s.rng.IntN(n+1))*(*d.Step)
	}
	return d.Low + s.rng.Float64()*(d.High-d.Low)
}

func (s *RandomSampler) sampleInt(d *domain.IntDistribution) float64 {
	if d.Single() {
		return float64(d.Low)
	}
	if d.Log {
		lo := math.Log(float64(d.Low) - 0.5)
		hi := math.Log(float64(d.High) + 0.5)
		v := math.Round(math.Exp(lo + s.rng.Float64()*(hi-lo)))
		return math.Min(math.Max(v, float64(d.Low)), float64(d.High))
	}
	n := (d.High - d.Low) / d.Step
	return float64(d.Low + s.rng.Int64N(n+1)*d.Step)
}
