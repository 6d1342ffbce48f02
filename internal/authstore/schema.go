package authstore

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Risk flags a scope as sensitive enough that granting it deserves extra
// scrutiny in the dashboard UI (it does not affect evaluation).
type Risk int

const (
	RiskDefault Risk = iota
	RiskHigh
)

func (r Risk) String() string {
	if r == RiskHigh {
		return "high"
	}
	return "default"
}

// ScopeData is one scope's schema entry: its documentation, default
// grantees, and optional cooldown.
type ScopeData struct {
	Doc      string        `yaml:"doc"`
	Risk     Risk          `yaml:"-"`
	RiskName string        `yaml:"risk"`
	Version  string        `yaml:"version"`
	Allow    []Role        `yaml:"-"`
	AllowRaw []string      `yaml:"allow"`
	Cooldown time.Duration `yaml:"-"`
	CooldownRaw string     `yaml:"cooldown"`
}

// Schema is the static document describing every scope's defaults. It is
// loaded once at startup and never mutated.
type Schema struct {
	Scopes map[Scope]ScopeData
}

type rawSchema struct {
	Scopes map[string]ScopeData `yaml:"scopes"`
}

// ParseSchema decodes a YAML schema document, resolving scope and role
// names to their enum values and cooldowns to durations.
func ParseSchema(data []byte) (*Schema, error) {
	var raw rawSchema
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("authstore: parse schema: %w", err)
	}

	schema := &Schema{Scopes: make(map[Scope]ScopeData, len(raw.Scopes))}
	for name, data := range raw.Scopes {
		scope := ParseScope(name)
		if scope == ScopeUnknown {
			return nil, fmt.Errorf("authstore: schema references unknown scope %q", name)
		}
		if data.RiskName == "high" {
			data.Risk = RiskHigh
		}
		for _, roleName := range data.AllowRaw {
			role := ParseRole(roleName)
			if role == RoleUnknown {
				return nil, fmt.Errorf("authstore: schema scope %q allows unknown role %q", name, roleName)
			}
			data.Allow = append(data.Allow, role)
		}
		if data.CooldownRaw != "" {
			d, err := time.ParseDuration(data.CooldownRaw)
			if err != nil {
				return nil, fmt.Errorf("authstore: schema scope %q has invalid cooldown: %w", name, err)
			}
			data.Cooldown = d
		}
		schema.Scopes[scope] = data
	}
	return schema, nil
}

// Cooldowns builds a per-scope cooldown duration map from the schema, for
// the command dispatcher to enforce.
func (s *Schema) Cooldowns() map[Scope]time.Duration {
	out := make(map[Scope]time.Duration)
	for scope, data := range s.Scopes {
		if data.Cooldown > 0 {
			out[scope] = data.Cooldown
		}
	}
	return out
}
