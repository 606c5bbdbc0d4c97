package window

import "strings"

// ResidencyPolicy answers whether a platform conventionally keeps an
// application running after its last window closes.
type ResidencyPolicy struct {
	platforms map[string]struct{}
}

// DefaultResidentPlatforms lists the GOOS values that stay resident.
var DefaultResidentPlatforms = []string{"darwin"}

// NewResidencyPolicy builds a policy from GOOS names.
func NewResidencyPolicy(goos ...string) ResidencyPolicy {
	p := ResidencyPolicy{platforms: make(map[string]struct{}, len(goos))}
	for _, g := range goos {
		g = strings.ToLower(strings.TrimSpace(g))
		if g != "" {
			p.platforms[g] = struct{}{}
		}
	}
	return p
}

// StaysResident reports whether goos keeps apps alive with zero windows.
func (p ResidencyPolicy) StaysResident(goos string) bool {
	_, ok := p.platforms[goos]
	return ok
}
