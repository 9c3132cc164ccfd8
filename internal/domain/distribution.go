package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Distribution describes the domain of a single parameter. Values are kept in
// an internal float64 representation in storage; categorical parameters store
// the index of the chosen value.
type Distribution interface {
	Name() string
	ToInternal(v any) (float64, error)
	ToExternal(f float64) any
	Contains(f float64) bool
	Single() bool
	attributes() any
}

type FloatDistribution struct {
	Low  float64
	High float64
	Log  bool
	Step *float64
}

// NewFloatDistribution validates the bounds. When a step is given, High is
// lowered to the last multiple of the step reachable from Low.
func NewFloatDistribution(low, high float64, log bool, step *float64) (*FloatDistribution, error) {
	if log && step != nil {
		return nil, fmt.Errorf("%w: log and step cannot be used together", ErrInvalidDistribution)
	}
	if low > high {
		return nil, fmt.Errorf("%w: low (%v) must be less than or equal to high (%v)", ErrInvalidDistribution, low, high)
	}
	if log && low <= 0 {
		return nil, fmt.Errorf("%w: low must be larger than 0 for a log distribution (low=%v)", ErrInvalidDistribution, low)
	}
	if step != nil {
		if *step <= 0 {
			return nil, fmt.Errorf("%w: step must be positive (step=%v)", ErrInvalidDistribution, *step)
		}
		n := math.Floor((high-low)/(*step) + 1e-8)
		high = low + n*(*step)
		s := *step
		step = &s
	}
	return &FloatDistribution{Low: low, High: high, Log: log, Step: step}, nil
}

func (d *FloatDistribution) Name() string { return "FloatDistribution" }

func (d *FloatDistribution) ToInternal(v any) (float64, error) {
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("%w: %v is not a number", ErrInvalidDistribution, v)
	}
	return f, nil
}

func (d *FloatDistribution) ToExternal(f float64) any { return f }

func (d *FloatDistribution) Contains(f float64) bool {
	if math.IsNaN(f) || f < d.Low || f > d.High {
		return false
	}
	if d.Step == nil {
		return true
	}
	k := (f - d.Low) / *d.Step
	return math.Abs(k-math.Round(k)) < 1e-8
}

func (d *FloatDistribution) Single() bool {
	if d.Step == nil {
		return d.Low == d.High
	}
	return d.High-d.Low < *d.Step
}

func (d *FloatDistribution) attributes() any {
	return struct {
		Low  float64  `json:"low"`
		High float64  `json:"high"`
		Log  bool     `json:"log"`
		Step *float64 `json:"step"`
	}{d.Low, d.High, d.Log, d.Step}
}

type IntDistribution struct {
	Low  int64
	High int64
	Log  bool
	Step int64
}

// NewIntDistribution validates the bounds. A zero step defaults to 1.
func NewIntDistribution(low, high int64, log bool, step int64) (*IntDistribution, error) {
	if step == 0 {
		step = 1
	}
	if log && step != 1 {
		return nil, fmt.Errorf("%w: log and step cannot be used together", ErrInvalidDistribution)
	}
	if step < 0 {
		return nil, fmt.Errorf("%w: step must be positive (step=%d)", ErrInvalidDistribution, step)
	}
	if low > high {
		return nil, fmt.Errorf("%w: low (%d) must be less than or equal to high (%d)", ErrInvalidDistribution, low, high)
	}
	if log && low < 1 {
		return nil, fmt.Errorf("%w: low must be larger than or equal to 1 for a log distribution (low=%d)", ErrInvalidDistribution, low)
	}
	high = low + (high-low)/step*step
	return &IntDistribution{Low: low, High: high, Log: log, Step: step}, nil
}

func (d *IntDistribution) Name() string { return "IntDistribution" }

func (d *IntDistribution) ToInternal(v any) (float64, error) {
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %v is not an integer", ErrInvalidDistribution, v)
	}
	return f, nil
}

func (d *IntDistribution) ToExternal(f float64) any { return int64(math.Round(f)) }

func (d *IntDistribution) Contains(f float64) bool {
	if f != math.Trunc(f) {
		return false
	}
	i := int64(f)
	return i >= d.Low && i <= d.High && (i-d.Low)%d.Step == 0
}

func (d *IntDistribution) Single() bool {
	return d.High-d.Low < d.Step
}

func (d *IntDistribution) attributes() any {
	return struct {
		Low  int64 `json:"low"`
		High int64 `json:"high"`
		Log  bool  `json:"log"`
		Step int64 `json:"step"`
	}{d.Low, d.High, d.Log, d.Step}
}

// CategoricalDistribution choices are strings, float64 numbers, booleans or nil.
type CategoricalDistribution struct {
	Choices []any
}

func NewCategoricalDistribution(choices []any) (*CategoricalDistribution, error) {
	if len(choices) == 0 {
		return nil, fmt.Errorf("%w: categorical distribution needs at least one choice", ErrInvalidDistribution)
	}
	normalized := make([]any, len(choices))
	for i, c := range choices {
		switch v := c.(type) {
		case nil, string, bool, float64:
			normalized[i] = v
		default:
			f, ok := toFloat(v)
			if !ok {
				return nil, fmt.Errorf("%w: choice %v of type %T is not supported", ErrInvalidDistribution, c, c)
			}
			normalized[i] = f
		}
	}
	return &CategoricalDistribution{Choices: normalized}, nil
}

func (d *CategoricalDistribution) Name() string { return "CategoricalDistribution" }

func (d *CategoricalDistribution) ToInternal(v any) (float64, error) {
	if f, ok := toFloat(v); ok {
		v = f
	}
	switch v.(type) {
	case nil, string, bool, float64:
	default:
		return 0, fmt.Errorf("%w: choice %v of type %T is not supported", ErrInvalidDistribution, v, v)
	}
	for i, c := range d.Choices {
		if c == v {
			return float64(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %v is not one of the choices %v", ErrInvalidDistribution, v, d.Choices)
}

func (d *CategoricalDistribution) ToExternal(f float64) any {
	return d.Choices[int(f)]
}

func (d *CategoricalDistribution) Contains(f float64) bool {
	i := int(f)
	return f == math.Trunc(f) && i >= 0 && i < len(d.Choices)
}

func (d *CategoricalDistribution) Single() bool { return len(d.Choices) == 1 }

func (d *CategoricalDistribution) attributes() any {
	return struct {
		Choices []any `json:"choices"`
	}{d.Choices}
}

type distributionJSON struct {
	Name       string          `json:"name"`
	Attributes json.RawMessage `json:"attributes"`
}

// DistributionToJSON encodes d as {"name": ..., "attributes": {...}}.
func DistributionToJSON(d Distribution) (string, error) {
	attrs, err := json.Marshal(d.attributes())
	if err != nil {
		return "", fmt.Errorf("failed to encode distribution: %w", err)
	}
	b, err := json.Marshal(distributionJSON{Name: d.Name(), Attributes: attrs})
	if err != nil {
		return "", fmt.Errorf("failed to encode distribution: %w", err)
	}
	return string(b), nil
}

// DistributionFromJSON decodes the format written by DistributionToJSON. The
// legacy uniform distribution names are mapped onto their replacements.
func DistributionFromJSON(s string) (Distribution, error) {
	var raw distributionJSON
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDistribution, err)
	}
	return decodeDistribution(raw)
}

func decodeDistribution(raw distributionJSON) (Distribution, error) {
	var attrs struct {
		Low     *float64 `json:"low"`
		High    *float64 `json:"high"`
		Log     bool     `json:"log"`
		Step    *float64 `json:"step"`
		Q       *float64 `json:"q"`
		Choices []any    `json:"choices"`
	}
	if len(raw.Attributes) > 0 {
		if err := json.Unmarshal(raw.Attributes, &attrs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDistribution, err)
		}
	}

	bounds := func() (float64, float64, error) {
		if attrs.Low == nil || attrs.High == nil {
			return 0, 0, fmt.Errorf("%w: %s requires low and high", ErrInvalidDistribution, raw.Name)
		}
		return *attrs.Low, *attrs.High, nil
	}

	switch raw.Name {
	case "FloatDistribution", "UniformDistribution", "LogUniformDistribution", "DiscreteUniformDistribution":
		low, high, err := bounds()
		if err != nil {
			return nil, err
		}
		step := attrs.Step
		if raw.Name == "DiscreteUniformDistribution" {
			step = attrs.Q
		}
		return NewFloatDistribution(low, high, attrs.Log || raw.Name == "LogUniformDistribution", step)
	case "IntDistribution", "IntUniformDistribution", "IntLogUniformDistribution":
		low, high, err := bounds()
		if err != nil {
			return nil, err
		}
		if low != math.Trunc(low) || high != math.Trunc(high) {
			return nil, fmt.Errorf("%w: %s bounds must be integers, got [%v, %v]", ErrInvalidDistribution, raw.Name, low, high)
		}
		var step int64 = 1
		if attrs.Step != nil {
			if *attrs.Step != math.Trunc(*attrs.Step) {
				return nil, fmt.Errorf("%w: %s step must be an integer, got %v", ErrInvalidDistribution, raw.Name, *attrs.Step)
			}
			step = int64(*attrs.Step)
		}
		return NewIntDistribution(int64(low), int64(high), attrs.Log || raw.Name == "IntLogUniformDistribution", step)
	case "CategoricalDistribution":
		return NewCategoricalDistribution(attrs.Choices)
	}
	return nil, fmt.Errorf("%w: unknown distribution %q", ErrInvalidDistribution, raw.Name)
}

// CheckCompatible fails when two distributions for the same parameter name
// cannot coexist in one study.
func CheckCompatible(a, b Distribution) error {
	if a.Name() != b.Name() {
		return fmt.Errorf("%w: cannot set different distribution kind to the same parameter name (%s != %s)",
			ErrIncompatibleDistribution, a.Name(), b.Name())
	}
	ca, ok := a.(*CategoricalDistribution)
	if !ok {
		return nil
	}
	cb := b.(*CategoricalDistribution)
	if len(ca.Choices) != len(cb.Choices) {
		return fmt.Errorf("%w: categorical choices differ", ErrIncompatibleDistribution)
	}
	for i := range ca.Choices {
		if ca.Choices[i] != cb.Choices[i] {
			return fmt.Errorf("%w: categorical choices differ", ErrIncompatibleDistribution)
		}
	}
	return nil
}

// SearchSpace maps parameter names to distributions.
type SearchSpace map[string]Distribution

// ParseSearchSpace decodes a JSON object of parameter name to distribution JSON.
func ParseSearchSpace(s string) (SearchSpace, error) {
	space := SearchSpace{}
	if s == "" {
		return space, nil
	}
	var raw map[string]distributionJSON
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse search space: %w", err)
	}
	for name, d := range raw {
		dist, err := decodeDistribution(d)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		space[name] = dist
	}
	return space, nil
}

// Names returns parameter names in lexical order.
func (s SearchSpace) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
