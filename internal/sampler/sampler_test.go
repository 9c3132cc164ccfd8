package sampler

import (
	"testing"

	"github.com/emiliopalmerini/mtune/internal/domain"
)

func TestNew(t *testing.T) {
	s, err := New("RandomSampler", `{"seed": 42}`)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Name() != RandomSamplerName {
		t.Errorf("Name() = %q", s.Name())
	}

	if _, err := New("", ""); err != nil {
		t.Errorf("default sampler: %v", err)
	}
	if _, err := New("TPESampler", ""); err == nil {
		t.Error("expected error for unknown sampler")
	}
	if _, err := New("RandomSampler", `{"n_startup_trials": 3}`); err == nil {
		t.Error("expected error for unknown kwarg")
	}
}

func TestRandomSampler_SeedIsDeterministic(t *testing.T) {
	seed := uint64(7)
	d, _ := domain.NewFloatDistribution(0, 1, false, nil)

	a := NewRandomSampler(&seed)
	b := NewRandomSampler(&seed)
	for i := 0; i < 5; i++ {
		if va, vb := a.Sample("x", d), b.Sample("x", d); va != vb {
			t.Fatalf("draw %d differs: %v != %v", i, va, vb)
		}
	}
}

func TestRandomSampler_StaysInDomain(t *testing.T) {
	seed := uint64(1)
	s := NewRandomSampler(&seed)

	step := 0.25
	stepped, _ := domain.NewFloatDistribution(-1, 1, false, &step)
	logFloat, _ := domain.NewFloatDistribution(1e-4, 1, true, nil)
	ints, _ := domain.NewIntDistribution(2, 20, false, 3)
	logInts, _ := domain.NewIntDistribution(1, 1000, true, 1)
	cat, _ := domain.NewCategoricalDistribution([]any{"a", "b", "c"})
	single, _ := domain.NewFloatDistribution(3, 3, false, nil)

	dists := map[string]domain.Distribution{
		"stepped": stepped, "log_float": logFloat, "ints": ints,
		"log_ints": logInts, "cat": cat, "single": single,
	}
	for name, d := range dists {
		for i := 0; i < 200; i++ {
			if v := s.Sample(name, d); !d.Contains(v) {
				t.Fatalf("%s: sampled %v outside the distribution", name, v)
			}
		}
	}
}
