package vcluster

import (
	"sync"
	"time"
)

// Kind tags which of the three call categories a rule governs.
type Kind int

const (
	KindPing Kind = iota
	KindSniff
	KindCall
)

func (k Kind) String() string {
	switch k {
	case KindPing:
		return "Ping"
	case KindSniff:
		return "Sniff"
	default:
		return "ClientCall"
	}
}

// Times returns a pointer to n for Rule.Times, since nil means "always"
// (§4.7).
func Times(n int) *int { return &n }

// Rule is one configured response for a (kind, port, path) match (§4.7).
// Path, when set, is matched against the endpoint's full path-and-query.
type Rule struct {
	OnPort int              // 0 means "match any port"
	Path   func(string) bool // nil means "match any path"

	// Times is nil for "always selected"; otherwise the rule is selected
	// while it has executed fewer than *Times times, then skipped in favor
	// of a less specific rule (§4.7).
	Times *int

	Succeeds   bool
	Status     int // used when !Succeeds; remapped to 502 if accidentally 2xx
	Takes      time.Duration
	ReturnBody []byte
	Raises     error

	mu           sync.Mutex
	executeCount int
}

func (r *Rule) tier() int {
	switch {
	case r.OnPort != 0 && r.Path != nil:
		return 1
	case r.OnPort != 0:
		return 2
	case r.Path != nil:
		return 3
	default:
		return 4
	}
}

func (r *Rule) matches(port int, path string) bool {
	if r.OnPort != 0 && r.OnPort != port {
		return false
	}
	if r.Path != nil && !r.Path(path) {
		return false
	}
	return true
}

func (r *Rule) available() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Times == nil || r.executeCount < *r.Times
}

func (r *Rule) recordExecution() {
	r.mu.Lock()
	r.executeCount++
	r.mu.Unlock()
}

// ExecuteCount reports how many times this rule has fired so far.
func (r *Rule) ExecuteCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.executeCount
}

// RuleSet holds the rules configured for each Kind and resolves the first
// matching rule in specificity-tier order: onPort+path, onPort only, path
// only, neither (§4.7 "Rule matching order").
type RuleSet struct {
	mu    sync.Mutex
	rules map[Kind][]*Rule
}

// NewRuleSet builds an empty rule set.
func NewRuleSet() *RuleSet {
	return &RuleSet{rules: make(map[Kind][]*Rule)}
}

// Add registers r under kind. Rules are matched in tier order regardless of
// registration order; ties within a tier resolve in registration order.
func (rs *RuleSet) Add(kind Kind, r *Rule) *RuleSet {
	rs.mu.Lock()
	rs.rules[kind] = append(rs.rules[kind], r)
	rs.mu.Unlock()
	return rs
}

// Match returns the first available rule for kind whose filters match
// (port, path), walking tiers from most to least specific, or nil when no
// rule applies.
func (rs *RuleSet) Match(kind Kind, port int, path string) *Rule {
	rs.mu.Lock()
	candidates := append([]*Rule(nil), rs.rules[kind]...)
	rs.mu.Unlock()

	for tier := 1; tier <= 4; tier++ {
		for _, r := range candidates {
			if r.tier() != tier {
				continue
			}
			if !r.matches(port, path) {
				continue
			}
			if !r.available() {
				continue
			}
			return r
		}
	}
	return nil
}
