package domain

import (
	"errors"
	"testing"

	"github.com/go-test/deep"
)

func TestNewFloatDistribution(t *testing.T) {
	step := 0.3
	tests := []struct {
		name     string
		low      float64
		high     float64
		log      bool
		step     *float64
		wantHigh float64
		wantErr  bool
	}{
		{"plain", 0, 1, false, nil, 1, false},
		{"log", 1e-5, 1, true, nil, 1, false},
		{"step trims high", 0, 1, false, &step, 0.9, false},
		{"log with step", 1, 10, true, &step, 0, true},
		{"low above high", 2, 1, false, nil, 0, true},
		{"log non positive", 0, 1, true, nil, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewFloatDistribution(tt.low, tt.high, tt.log, tt.step)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrInvalidDistribution) {
					t.Errorf("expected ErrInvalidDistribution, got %v", err)
				}
				return
			}
			if diff := d.High - tt.wantHigh; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("High = %v, want %v", d.High, tt.wantHigh)
			}
		})
	}
}

func TestIntDistribution_Contains(t *testing.T) {
	d, err := NewIntDistribution(0, 10, false, 2)
	if err != nil {
		t.Fatalf("NewIntDistribution: %v", err)
	}

	for _, v := range []float64{0, 2, 10} {
		if !d.Contains(v) {
			t.Errorf("Contains(%v) = false, want true", v)
		}
	}
	for _, v := range []float64{1, 11, -2, 2.5} {
		if d.Contains(v) {
			t.Errorf("Contains(%v) = true, want false", v)
		}
	}
}

func TestCategoricalDistribution_InternalRoundTrip(t *testing.T) {
	d, err := NewCategoricalDistribution([]any{"adam", "sgd", 3, true, nil})
	if err != nil {
		t.Fatalf("NewCategoricalDistribution: %v", err)
	}

	for i, choice := range []any{"adam", "sgd", 3, true, nil} {
		internal, err := d.ToInternal(choice)
		if err != nil {
			t.Fatalf("ToInternal(%v): %v", choice, err)
		}
		if internal != float64(i) {
			t.Errorf("ToInternal(%v) = %v, want %d", choice, internal, i)
		}
	}

	if got := d.ToExternal(2); got != 3.0 {
		t.Errorf("ToExternal(2) = %v, want 3", got)
	}
	if _, err := d.ToInternal("rmsprop"); err == nil {
		t.Error("expected error for unknown choice")
	}
}

func TestDistributionJSON(t *testing.T) {
	step := 0.5
	float, _ := NewFloatDistribution(0, 2, false, &step)
	integer, _ := NewIntDistribution(1, 100, true, 1)
	cat, _ := NewCategoricalDistribution([]any{"a", "b"})

	for _, d := range []Distribution{float, integer, cat} {
		t.Run(d.Name(), func(t *testing.T) {
			s, err := DistributionToJSON(d)
			if err != nil {
				t.Fatalf("DistributionToJSON: %v", err)
			}
			got, err := DistributionFromJSON(s)
			if err != nil {
				t.Fatalf("DistributionFromJSON(%s): %v", s, err)
			}
			if diff := deep.Equal(got, d); diff != nil {
				t.Error(diff)
			}
		})
	}
}

func TestDistributionFromJSON_Legacy(t *testing.T) {
	tests := []struct {
		in   string
		want Distribution
	}{
		{
			`{"name": "UniformDistribution", "attributes": {"low": 0, "high": 1}}`,
			&FloatDistribution{Low: 0, High: 1},
		},
		{
			`{"name": "LogUniformDistribution", "attributes": {"low": 0.1, "high": 1}}`,
			&FloatDistribution{Low: 0.1, High: 1, Log: true},
		},
		{
			`{"name": "IntUniformDistribution", "attributes": {"low": 1, "high": 9, "step": 2}}`,
			&IntDistribution{Low: 1, High: 9, Step: 2},
		},
	}

	for _, tt := range tests {
		got, err := DistributionFromJSON(tt.in)
		if err != nil {
			t.Fatalf("DistributionFromJSON(%s): %v", tt.in, err)
		}
		if diff := deep.Equal(got, tt.want); diff != nil {
			t.Errorf("%s: %v", tt.in, diff)
		}
	}

	if _, err := DistributionFromJSON(`{"name": "NormalDistribution", "attributes": {}}`); !errors.Is(err, ErrInvalidDistribution) {
		t.Errorf("expected ErrInvalidDistribution for unknown name, got %v", err)
	}
}

func TestDistributionFromJSON_RejectsFractionalInts(t *testing.T) {
	tests := []string{
		`{"name": "IntDistribution", "attributes": {"low": 0.5, "high": 4}}`,
		`{"name": "IntDistribution", "attributes": {"low": 0, "high": 4.2}}`,
		`{"name": "IntDistribution", "attributes": {"low": 0, "high": 4, "step": 0.5}}`,
		`{"name": "IntUniformDistribution", "attributes": {"low": 1, "high": 9, "step": 1.5}}`,
	}
	for _, in := range tests {
		if _, err := DistributionFromJSON(in); !errors.Is(err, ErrInvalidDistribution) {
			t.Errorf("DistributionFromJSON(%s) err = %v, want ErrInvalidDistribution", in, err)
		}
	}
}

func TestCheckCompatible(t *testing.T) {
	f1, _ := NewFloatDistribution(0, 1, false, nil)
	f2, _ := NewFloatDistribution(-5, 5, false, nil)
	i1, _ := NewIntDistribution(0, 1, false, 1)
	c1, _ := NewCategoricalDistribution([]any{"a", "b"})
	c2, _ := NewCategoricalDistribution([]any{"a", "c"})

	if err := CheckCompatible(f1, f2); err != nil {
		t.Errorf("float ranges should be compatible: %v", err)
	}
	if err := CheckCompatible(f1, i1); !errors.Is(err, ErrIncompatibleDistribution) {
		t.Errorf("float vs int: got %v", err)
	}
	if err := CheckCompatible(c1, c2); !errors.Is(err, ErrIncompatibleDistribution) {
		t.Errorf("differing choices: got %v", err)
	}
}

func TestParseSearchSpace(t *testing.T) {
	space, err := ParseSearchSpace(`{
		"x": {"name": "FloatDistribution", "attributes": {"low": 0.0, "high": 1.0}},
		"optimizer": {"name": "CategoricalDistribution", "attributes": {"choices": ["adam", "sgd"]}}
	}`)
	if err != nil {
		t.Fatalf("ParseSearchSpace: %v", err)
	}

	if diff := deep.Equal(space.Names(), []string{"optimizer", "x"}); diff != nil {
		t.Error(diff)
	}
	if _, err := ParseSearchSpace(`{"x": {"name": "FloatDistribution", "attributes": {"low": 2, "high": 1}}}`); err == nil {
		t.Error("expected error for invalid bounds")
	}
}
