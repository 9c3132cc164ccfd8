package objective

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/emiliopalmerini/mtune/internal/domain"
)

// Config is an optimization run described in an HCL file:
//
//	study {
//	  name      = "quadratic"
//	  direction = "minimize"
//	  n_trials  = 50
//	}
//
//	objective {
//	  command = ["python", "train.py"]
//	  timeout = "5m"
//	}
//
//	param "x" {
//	  type = "float"
//	  low  = -10
//	  high = 10
//	}
type Config struct {
	StudyName     string
	Directions    []domain.StudyDirection
	NTrials       int
	Sampler       string
	SamplerKwargs string
	Objective     Objective
	SearchSpace   domain.SearchSpace
}

// Objective is the external command evaluated for every trial.
type Objective struct {
	Command []string
	Timeout time.Duration
	Env     map[string]string
	Dir     string
}

type hclFile struct {
	Study     *hclStudy    `hcl:"study,block"`
	Objective hclObjective `hcl:"objective,block"`
	Params    []*hclParam  `hcl:"param,block"`
}

type hclStudy struct {
	Name          *string  `hcl:"name,optional"`
	Direction     *string  `hcl:"direction,optional"`
	Directions    []string `hcl:"directions,optional"`
	NTrials       *int     `hcl:"n_trials,optional"`
	Sampler       *string  `hcl:"sampler,optional"`
	SamplerKwargs *string  `hcl:"sampler_kwargs,optional"`
}

type hclObjective struct {
	Command []string          `hcl:"command"`
	Timeout *string           `hcl:"timeout,optional"`
	Env     map[string]string `hcl:"env,optional"`
	Dir     *string           `hcl:"dir,optional"`
}

type hclParam struct {
	Name    string    `hcl:"name,label"`
	Type    string    `hcl:"type"`
	Low     *float64  `hcl:"low,optional"`
	High    *float64  `hcl:"high,optional"`
	Log     *bool     `hcl:"log,optional"`
	Step    *float64  `hcl:"step,optional"`
	Choices cty.Value `hcl:"choices,optional"`
}

// LoadConfig parses the HCL file at path.
func LoadConfig(path string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}
	return decodeConfig(file, path)
}

// ParseConfig parses HCL source. filename is only used in diagnostics.
func ParseConfig(src []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	return decodeConfig(file, filename)
}

func decodeConfig(file *hcl.File, filename string) (*Config, error) {
	var parsed hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	cfg := &Config{SearchSpace: domain.SearchSpace{}}

	if st := parsed.Study; st != nil {
		if st.Name != nil {
			cfg.StudyName = *st.Name
		}
		if st.Direction != nil && len(st.Directions) > 0 {
			return nil, fmt.Errorf("%s: study block sets both direction and directions", filename)
		}
		raw := st.Directions
		if st.Direction != nil {
			raw = []string{*st.Direction}
		}
		if len(raw) > 0 {
			dirs, err := domain.ParseStudyDirections(raw)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", filename, err)
			}
			cfg.Directions = dirs
		}
		if st.NTrials != nil {
			if *st.NTrials < 0 {
				return nil, fmt.Errorf("%s: n_trials must not be negative", filename)
			}
			cfg.NTrials = *st.NTrials
		}
		if st.Sampler != nil {
			cfg.Sampler = *st.Sampler
		}
		if st.SamplerKwargs != nil {
			cfg.SamplerKwargs = *st.SamplerKwargs
		}
	}

	obj := parsed.Objective
	if len(obj.Command) == 0 {
		return nil, fmt.Errorf("%s: objective command must not be empty", filename)
	}
	cfg.Objective = Objective{Command: obj.Command, Env: obj.Env}
	if obj.Dir != nil {
		cfg.Objective.Dir = *obj.Dir
	}
	if obj.Timeout != nil {
		d, err := time.ParseDuration(*obj.Timeout)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid objective timeout: %w", filename, err)
		}
		cfg.Objective.Timeout = d
	}

	for _, p := range parsed.Params {
		if _, dup := cfg.SearchSpace[p.Name]; dup {
			return nil, fmt.Errorf("%s: parameter %q declared twice", filename, p.Name)
		}
		dist, err := p.distribution()
		if err != nil {
			return nil, fmt.Errorf("%s: parameter %q: %w", filename, p.Name, err)
		}
		cfg.SearchSpace[p.Name] = dist
	}
	return cfg, nil
}

func (p *hclParam) distribution() (domain.Distribution, error) {
	log := p.Log != nil && *p.Log

	switch p.Type {
	case "float":
		if p.Low == nil || p.High == nil {
			return nil, fmt.Errorf("float parameters need low and high")
		}
		return domain.NewFloatDistribution(*p.Low, *p.High, log, p.Step)
	case "int":
		if p.Low == nil || p.High == nil {
			return nil, fmt.Errorf("int parameters need low and high")
		}
		var step int64 = 1
		if p.Step != nil {
			step = int64(*p.Step)
		}
		return domain.NewIntDistribution(int64(*p.Low), int64(*p.High), log, step)
	case "categorical":
		choices, err := ctyChoices(p.Choices)
		if err != nil {
			return nil, err
		}
		return domain.NewCategoricalDistribution(choices)
	}
	return nil, fmt.Errorf("unknown parameter type %q: must be float, int or categorical", p.Type)
}

func ctyChoices(v cty.Value) ([]any, error) {
	if v.IsNull() {
		return nil, fmt.Errorf("categorical parameters need choices")
	}
	if !v.Type().IsListType() && !v.Type().IsTupleType() && !v.Type().IsSetType() {
		return nil, fmt.Errorf("choices must be a list")
	}
	var out []any
	for it := v.ElementIterator(); it.Next(); {
		_, el := it.Element()
		switch {
		case el.IsNull():
			out = append(out, nil)
		case el.Type() == cty.String:
			out = append(out, el.AsString())
		case el.Type() == cty.Number:
			f, _ := el.AsBigFloat().Float64()
			out = append(out, f)
		case el.Type() == cty.Bool:
			out = append(out, el.True())
		default:
			return nil, fmt.Errorf("unsupported choice type %s", el.Type().FriendlyName())
		}
	}
	return out, nil
}
