package normalize

import "fmt"

// MaskVariant names one of the two PIF zone masks.
type MaskVariant string

const (
	Unbalanced MaskVariant = "unbalanced"
	Balanced   MaskVariant = "balanced"
)

// Attempt is one (mask, outlier coefficient) configuration.
type Attempt struct {
	Mask MaskVariant `mapstructure:"mask" yaml:"mask" json:"mask"`
	Coef float64     `mapstructure:"coef" yaml:"coef" json:"coef"`
}

func (a Attempt) String() string { return fmt.Sprintf("%s/%g", a.Mask, a.Coef) }

// DefaultEscalation is the order in which configurations are tried: outlier
// tolerance is raised on the unbalanced mask before switching variant, and the
// widest tolerance comes last for both.
func DefaultEscalation() []Attempt {
	return []Attempt{
		{Mask: Unbalanced, Coef: 1},
		{Mask: Unbalanced, Coef: 2},
		{Mask: Balanced, Coef: 1},
		{Mask: Balanced, Coef: 2},
		{Mask: Unbalanced, Coef: 3},
		{Mask: Balanced, Coef: 3},
	}
}

// Variants returns the distinct masks an escalation needs, in first-use order.
func Variants(steps []Attempt) []MaskVariant {
	seen := make(map[MaskVariant]bool, 2)
	var out []MaskVariant
	for _, s := range steps {
		if !seen[s.Mask] {
			seen[s.Mask] = true
			out = append(out, s.Mask)
		}
	}
	return out
}
