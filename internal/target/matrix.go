package target

import (
	"github.com/tridentframe/launcher/internal/domain"
)

// Matrix holds the ordered launch rules. The first matching rule wins.
type Matrix struct {
	layout Layout
	rules  []Rule
}

// NewMatrix creates a matrix with the default rules.
func NewMatrix(layout Layout) *Matrix {
	return NewMatrixWithRules(layout,
		DevelopmentRule{},
		WindowsReleaseRule{},
		LinuxReleaseRule{},
	)
}

// NewMatrixWithRules creates a matrix with custom rules (for testing).
func NewMatrixWithRules(layout Layout, rules ...Rule) *Matrix {
	return &Matrix{layout: layout, rules: rules}
}

// Register appends a rule. Rules registered later have lower priority.
func (m *Matrix) Register(r Rule) {
	m.rules = append(m.rules, r)
}

// Rules returns the registered rules in priority order.
func (m *Matrix) Rules() []Rule {
	out := make([]Rule, len(m.rules))
	copy(out, m.rules)
	return out
}

// Layout returns the layout targets are built against.
func (m *Matrix) Layout() Layout {
	return m.layout
}

// Resolve returns the target for mode and platform, or an UNRESOLVED_TARGET
// error when no rule covers the pair.
func (m *Matrix) Resolve(mode domain.DeploymentMode, platform domain.Platform, port domain.PortAssignment) (domain.BackendTarget, error) {
	for _, r := range m.rules {
		if !r.Matches(mode, platform) {
			continue
		}
		t := r.Build(m.layout, port)
		t.Mode = mode
		t.Platform = platform
		return t, nil
	}

	return domain.BackendTarget{}, domain.NewError(domain.CodeUnresolvedTarget, "no backend packaged for this platform").
		WithContext("mode", mode).
		WithContext("platform", platform)
}

// Ensure Matrix implements domain.TargetResolver.
var _ domain.TargetResolver = (*Matrix)(nil)
