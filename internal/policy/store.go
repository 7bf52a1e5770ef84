package policy

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed seed_policies.yaml
var defaultCatalog []byte

// Policy is a corporate policy assigned to a set of employees
type Policy struct {
	ID           int      `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Category     string   `json:"category" yaml:"category"`
	Status       string   `json:"status" yaml:"status"`
	LastUpdated  string   `json:"last_updated" yaml:"last_updated"`
	Acknowledged bool     `json:"acknowledged" yaml:"acknowledged"`
	AssignedTo   []string `json:"assigned_to" yaml:"assigned_to"`
}

// Store is a read-only policy catalog
type Store struct {
	policies []Policy
}

// NewStore wraps the given policies. Assignment emails are matched as stored,
// so callers should supply them lowercased.
func NewStore(policies []Policy) *Store {
	return &Store{policies: policies}
}

// NewDefaultStore loads the built-in policy catalog
func NewDefaultStore() (*Store, error) {
	policies, err := ParseCatalog(defaultCatalog)
	if err != nil {
		return nil, err
	}
	return NewStore(policies), nil
}

// ParseCatalog decodes a YAML list of policies
func ParseCatalog(data []byte) ([]Policy, error) {
	var policies []Policy
	if err := yaml.Unmarshal(data, &policies); err != nil {
		return nil, fmt.Errorf("failed to parse policy catalog: %w", err)
	}
	return policies, nil
}

// List returns every policy in catalog order
func (s *Store) List() []Policy {
	out := make([]Policy, len(s.policies))
	copy(out, s.policies)
	return out
}

// Get returns the policy with the given id
func (s *Store) Get(id int) (Policy, bool) {
	for _, p := range s.policies {
		if p.ID == id {
			return p, true
		}
	}
	return Policy{}, false
}

// ListForUser returns the policies assigned to email
func (s *Store) ListForUser(email string) []Policy {
	email = strings.ToLower(email)

	out := make([]Policy, 0)
	for _, p := range s.policies {
		for _, assignee := range p.AssignedTo {
			if assignee == email {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// PendingCount returns how many of the user's policies are not yet acknowledged
func (s *Store) PendingCount(email string) int {
	count := 0
	for _, p := range s.ListForUser(email) {
		if !p.Acknowledged {
			count++
		}
	}
	return count
}
