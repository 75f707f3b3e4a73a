package detector

import (
	"regexp"

	"analytics-tag-checker/internal/models"
)

// Pattern is one identifier rule over raw markup. Group 0 takes the whole
// match, any other value takes that capture group.
type Pattern struct {
	Vendor models.Vendor
	Name   string
	Re     *regexp.Regexp
	Group  int
}

func newPattern(v models.Vendor, name, expr string, group int) Pattern {
	return Pattern{Vendor: v, Name: name, Re: regexp.MustCompile(expr), Group: group}
}

// FindAll returns every identifier the rule captures, in match order.
func (p Pattern) FindAll(markup string) []string {
	var out []string
	for _, m := range p.Re.FindAllStringSubmatch(markup, -1) {
		if p.Group < len(m) && m[p.Group] != "" {
			out = append(out, m[p.Group])
		}
	}
	return out
}

// idSet keeps first-insertion order and drops repeats.
type idSet struct {
	seen map[string]struct{}
	ids  []string
}

func newIDSet() *idSet {
	return &idSet{seen: map[string]struct{}{}, ids: []string{}}
}

func (s *idSet) add(ids ...string) {
	for _, id := range ids {
		if _, dup := s.seen[id]; dup {
			continue
		}
		s.seen[id] = struct{}{}
		s.ids = append(s.ids, id)
	}
}

func (s *idSet) list() []string { return s.ids }

func collect(markup string, patterns []Pattern) *idSet {
	set := newIDSet()
	for _, p := range patterns {
		set.add(p.FindAll(markup)...)
	}
	return set
}
