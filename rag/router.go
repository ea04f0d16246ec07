package rag

import "strings"

// Rule routes a question away from the retrieval pipeline. When Match
// returns true, the question is answered either with FixedAnswer (when
// non-empty) or by the generation collaborator with empty context.
type Rule struct {
	Name        string
	Match       func(question string) bool
	FixedAnswer string
}

// Router evaluates an ordered rule table before the generic pipeline runs.
// First match wins; no match means the question needs the document.
type Router struct {
	rules []Rule
}

// NewRouter creates a router over the given rules, evaluated in order.
func NewRouter(rules []Rule) *Router {
	return &Router{rules: rules}
}

// Route returns the first matching rule, if any.
func (r *Router) Route(question string) (Rule, bool) {
	for _, rule := range r.rules {
		if rule.Match != nil && rule.Match(question) {
			return rule, true
		}
	}
	return Rule{}, false
}

// KeywordRule matches when the question contains any of the given phrases,
// case-insensitively.
func KeywordRule(name string, fixedAnswer string, phrases ...string) Rule {
	lowered := make([]string, len(phrases))
	for i, p := range phrases {
		lowered[i] = strings.ToLower(p)
	}
	return Rule{
		Name: name,
		Match: func(question string) bool {
			q := strings.ToLower(question)
			for _, p := range lowered {
				if strings.Contains(q, p) {
					return true
				}
			}
			return false
		},
		FixedAnswer: fixedAnswer,
	}
}

// DefaultRules detects questions answerable from general knowledge alone,
// so they skip retrieval and go straight to generation with empty context.
func DefaultRules() []Rule {
	return []Rule{
		KeywordRule("biographical", "",
			"who is", "who was", "biography of"),
		KeywordRule("well-known-fact", "",
			"capital of", "currency of", "population of", "largest country",
			"smallest country", "tallest mountain", "longest river"),
	}
}
