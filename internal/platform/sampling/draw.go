package sampling

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/synthrec/synthrec/internal/platform/expr"
)

// Subject carries the patient facts a draw may condition on.
type Subject struct {
	Gender     string
	Age        int
	Conditions []string
}

func (s Subject) hasCondition(name string) bool {
	for _, c := range s.Conditions {
		if c == name {
			return true
		}
	}
	return false
}

// Draw samples one value from the spec for the subject. Overrides apply
// gender first, then age group, then every matching disease modifier in
// declaration order; each override replaces exactly the parameters it sets.
// The level scales dispersion only. The same spec, subject, level, and rng
// state always produce the same value.
func Draw(spec *Spec, subject Subject, rng *rand.Rand, level Level) (expr.Value, error) {
	if !spec.Distribution.IsValid() {
		return expr.Value{}, fmt.Errorf("unknown distribution %q", spec.Distribution)
	}

	if spec.Distribution == Categorical {
		return drawCategorical(spec, rng)
	}

	mean, std, lo, hi := spec.Mean, spec.Std, spec.Min, spec.Max
	apply := func(p ModifierParams) {
		if p.Mean != nil {
			mean = *p.Mean
		}
		if p.Std != nil {
			std = *p.Std
		}
		if p.Min != nil {
			lo = *p.Min
		}
		if p.Max != nil {
			hi = *p.Max
		}
	}

	if p, ok := spec.GenderModifiers[strings.ToLower(subject.Gender)]; ok {
		apply(p)
	}
	if subject.Age >= ElderlyAge {
		if p, ok := spec.AgeModifiers["elderly"]; ok {
			apply(p)
		}
	} else if subject.Age <= YoungAge {
		if p, ok := spec.AgeModifiers["young"]; ok {
			apply(p)
		}
	}
	for _, m := range spec.DiseaseModifiers {
		if subject.hasCondition(m.Condition) {
			apply(m.Params)
		}
	}

	mult := level.Multiplier()
	var v float64
	switch spec.Distribution {
	case Normal:
		v = mean + rng.NormFloat64()*std*mult
	case LogNormal:
		if mean <= 0 {
			return expr.Value{}, fmt.Errorf("lognormal mean must be > 0, got %g", mean)
		}
		sigma := std * mult / mean
		v = math.Exp(math.Log(mean) + rng.NormFloat64()*sigma)
	case Uniform:
		if lo > hi {
			return expr.Value{}, fmt.Errorf("uniform range inverted after modifiers: [%g, %g]", lo, hi)
		}
		mid := (lo + hi) / 2
		half := (hi - lo) / 2 * mult
		v = mid - half + rng.Float64()*2*half
	}

	if spec.Critical != nil {
		if spec.Critical.Low != nil && v < *spec.Critical.Low {
			v = *spec.Critical.Low
		}
		if spec.Critical.High != nil && v > *spec.Critical.High {
			v = *spec.Critical.High
		}
	}

	if spec.Integer {
		return expr.Num(math.Round(v)), nil
	}
	prec := 2
	if spec.Precision != nil {
		prec = *spec.Precision
	}
	return expr.Num(roundTo(v, prec)), nil
}

func drawCategorical(spec *Spec, rng *rand.Rand) (expr.Value, error) {
	if len(spec.Choices) == 0 {
		return expr.Value{}, fmt.Errorf("categorical distribution has no choices")
	}
	if len(spec.Weights) == 0 {
		return spec.Choices[rng.Intn(len(spec.Choices))], nil
	}
	if len(spec.Weights) != len(spec.Choices) {
		return expr.Value{}, fmt.Errorf("categorical distribution has %d choices but %d weights", len(spec.Choices), len(spec.Weights))
	}

	total := 0.0
	for _, w := range spec.Weights {
		total += w
	}
	if total <= 0 {
		return expr.Value{}, fmt.Errorf("categorical weights sum to %g", total)
	}

	r := rng.Float64() * total
	for i, w := range spec.Weights {
		r -= w
		if r < 0 {
			return spec.Choices[i], nil
		}
	}
	return spec.Choices[len(spec.Choices)-1], nil
}

func roundTo(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
