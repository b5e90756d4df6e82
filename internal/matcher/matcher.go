// Package matcher locates form fields on a page. It has two modes:
// heuristic role classification of login-like fields (mode used by the
// generic password-manager flow) and exact-name resolution of template
// fields (mode used by template-driven autofill).
package matcher

import (
	"strings"

	"github.com/formsync/extension-core/internal/dom"
	"github.com/formsync/extension-core/internal/models"
	"go.uber.org/zap"
)

// Role classifies a detected field.
type Role string

const (
	RoleUsername     Role = "username"
	RolePassword     Role = "password"
	RoleUnclassified Role = "unclassified"
)

// processedAttr marks elements that were already classified so DOM
// churn does not reprocess them.
const processedAttr = "data-formsync"

// Badges shown next to recognized fields.
const (
	badgeUsername = "👤"
	badgePassword = "🔒"
)

// Rule pairs a predicate with the role it assigns. Rules are evaluated
// in order; the first match wins.
type Rule struct {
	// Name identifies the rule in logs and tests.
	Name string
	// Role is assigned when Match returns true.
	Role Role
	// Match is the predicate over a page element.
	Match func(el *dom.Element) bool
}

// usernameHints and passwordHints are the substrings probed against
// name, id and placeholder. The Portuguese terms come from the
// product's home market.
var (
	usernameHints            = []string{"user", "email", "login", "account"}
	usernamePlaceholderHints = []string{"usuário", "email", "login", "user", "e-mail"}
	passwordHints            = []string{"pass", "senha"}
	passwordPlaceholderHints = []string{"senha", "password"}
)

// DefaultRules returns the built-in prioritized rule table: username
// rules first, then password rules.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "username-input-type", Role: RoleUsername, Match: func(el *dom.Element) bool {
			return el.Tag == "input" && (el.Type == "text" || el.Type == "email")
		}},
		{Name: "username-name", Role: RoleUsername, Match: attrContainsAny((*dom.Element).Name, usernameHints)},
		{Name: "username-id", Role: RoleUsername, Match: attrContainsAny((*dom.Element).ID, usernameHints)},
		{Name: "username-placeholder", Role: RoleUsername, Match: attrContainsAny((*dom.Element).Placeholder, usernamePlaceholderHints)},
		{Name: "password-input-type", Role: RolePassword, Match: func(el *dom.Element) bool {
			return el.Tag == "input" && el.Type == "password"
		}},
		{Name: "password-name", Role: RolePassword, Match: attrContainsAny((*dom.Element).Name, passwordHints)},
		{Name: "password-id", Role: RolePassword, Match: attrContainsAny((*dom.Element).ID, passwordHints)},
		{Name: "password-placeholder", Role: RolePassword, Match: attrContainsAny((*dom.Element).Placeholder, passwordPlaceholderHints)},
	}
}

func attrContainsAny(get func(*dom.Element) string, hints []string) func(*dom.Element) bool {
	return func(el *dom.Element) bool {
		if el.Tag != "input" {
			return false
		}
		v := strings.ToLower(get(el))
		if v == "" {
			return false
		}
		for _, h := range hints {
			if strings.Contains(v, h) {
				return true
			}
		}
		return false
	}
}

// Candidate is a classified page element.
type Candidate struct {
	Element *dom.Element
	Role    Role
	// Badge is the visual marker attached next to the field.
	Badge string
}

// Matcher classifies and resolves page elements. Construct with New.
type Matcher struct {
	rules []Rule
	log   *zap.Logger
}

// New returns a Matcher using the given rule table; pass DefaultRules()
// for the built-in heuristics.
func New(rules []Rule, log *zap.Logger) *Matcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Matcher{rules: rules, log: log}
}

// Classify runs the rule table over el and returns the first matching
// role, or RoleUnclassified.
func (m *Matcher) Classify(el *dom.Element) Role {
	for _, r := range m.rules {
		if r.Match(el) {
			return r.Role
		}
	}
	return RoleUnclassified
}

// Scan classifies every not-yet-processed input on the page, marks it
// processed, and returns the new candidates with their badges. Zero
// candidates is a normal outcome, not an error. Scan is idempotent:
// rescanning an unchanged page returns nothing new.
func (m *Matcher) Scan(page *dom.Page) []Candidate {
	var out []Candidate
	for _, el := range page.Inputs() {
		if el.Attr(processedAttr) != "" {
			continue
		}
		role := m.Classify(el)
		if role == RoleUnclassified {
			continue
		}
		el.SetAttr(processedAttr, string(role))
		badge := badgeUsername
		if role == RolePassword {
			badge = badgePassword
		}
		out = append(out, Candidate{Element: el, Role: role, Badge: badge})
	}
	if len(out) > 0 {
		m.log.Debug("classified form fields", zap.Int("count", len(out)))
	}
	return out
}

// Watch performs an initial Scan and rescans on every DOM mutation,
// invoking onFound for each batch of new candidates. The returned
// handle stops the subscription; it does not undo badges already drawn.
func (m *Matcher) Watch(page *dom.Page, onFound func([]Candidate)) *Watch {
	emit := func() {
		if c := m.Scan(page); len(c) > 0 {
			onFound(c)
		}
	}
	emit()
	stop := page.Observe(emit)
	return &Watch{stop: stop}
}

// Watch is a running mutation subscription.
type Watch struct {
	stop func()
}

// Stop tears down the subscription. Safe to call multiple times.
func (w *Watch) Stop() { w.stop() }

// Resolve locates usable elements for a template field: first an exact
// id or name match, then a normalized substring match over name, id,
// placeholder and label text. Returns zero or more elements; an empty
// result means the field is skipped, not an error.
func (m *Matcher) Resolve(page *dom.Page, field models.Field) []*dom.Element {
	inputs := usable(page.Inputs())

	var exact []*dom.Element
	for _, el := range inputs {
		if strings.EqualFold(el.ID(), field.Name) || strings.EqualFold(el.Name(), field.Name) {
			exact = append(exact, el)
		}
	}
	if len(exact) > 0 {
		return exact
	}

	want := normalize(field.Name)
	if want == "" {
		return nil
	}
	var fuzzy []*dom.Element
	for _, el := range inputs {
		for _, s := range []string{el.Name(), el.ID(), el.Placeholder(), el.Label} {
			n := normalize(s)
			if n == "" {
				continue
			}
			if strings.Contains(n, want) || strings.Contains(want, n) {
				fuzzy = append(fuzzy, el)
				break
			}
		}
	}
	return fuzzy
}

func usable(els []*dom.Element) []*dom.Element {
	out := els[:0:0]
	for _, el := range els {
		if el.Type == "hidden" {
			continue
		}
		out = append(out, el)
	}
	return out
}

// normalize lowercases and strips everything but letters and digits so
// "E-mail" matches "email".
func normalize(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
