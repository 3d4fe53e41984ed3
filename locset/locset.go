// Package locset holds the persisted locator configuration: an immutable,
// version-tagged value with a "current" and a "fallback" variant, each
// mapping identifiers to ordered candidate lists (first match wins).
//
// A Set is loaded once per run and never mutated in place. Updates build a
// new Set (see updater) which Save writes back as the next revision.
package locset

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrNoRowSelectors is returned when current.table.rowSelectors is empty.
var ErrNoRowSelectors = errors.New("locset: current.table.rowSelectors is empty")

// Version tags a variant.
type Version string

const (
	Current  Version = "current"
	Fallback Version = "fallback"
)

// DefaultCellSelector is used when a variant does not name one.
const DefaultCellSelector = "td"

// Candidates is an ordered list of locator expressions. In the artifact an
// entry is either a single string or a list of strings.
type Candidates []string

// Primary returns the first candidate, or "".
func (c Candidates) Primary() string {
	if len(c) == 0 {
		return ""
	}
	return c[0]
}

// Contains reports whether loc is one of the candidates.
func (c Candidates) Contains(loc string) bool {
	return slices.Contains(c, loc)
}

// UnmarshalJSON accepts a string or an array of strings.
func (c *Candidates) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*c = nil
		} else {
			*c = Candidates{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("locset: candidates must be a string or a list: %w", err)
	}
	*c = many
	return nil
}

// MarshalJSON writes a single candidate as a bare string.
func (c Candidates) MarshalJSON() ([]byte, error) {
	if len(c) == 1 {
		return json.Marshal(c[0])
	}
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(c))
}

// Table locates the data table.
type Table struct {
	RowSelectors Candidates `json:"rowSelectors"`
	CellSelector Candidates `json:"cellSelector,omitempty"`

	// AutoRowSelector names the rowSelectors entry owned by the updater.
	// Only that slot is ever replaced.
	AutoRowSelector string `json:"autoRowSelector,omitempty"`

	// raw is the table object as read, kept so unknown keys survive a save.
	raw map[string]json.RawMessage
}

// Variant is one version of the locator configuration.
type Variant struct {
	Version    Version               `json:"-"`
	Login      map[string]Candidates `json:"login,omitempty"`
	PostLogin  map[string]Candidates `json:"postLogin,omitempty"`
	Table      Table                 `json:"table"`
	Fields     map[string]Candidates `json:"fields,omitempty"`
	Actions    map[string]Candidates `json:"actions,omitempty"`
	Pagination map[string]Candidates `json:"pagination,omitempty"`

	// raw is the variant object as read. Keys the extractor owns and entries
	// left untouched are written back from it unchanged.
	raw map[string]json.RawMessage
}

// Cell returns the cell selector, defaulting to "td".
func (v Variant) Cell() string {
	if p := v.Table.CellSelector.Primary(); p != "" {
		return p
	}
	return DefaultCellSelector
}

// Clone returns a deep copy.
func (v Variant) Clone() Variant {
	out := v
	out.Login = cloneMap(v.Login)
	out.PostLogin = cloneMap(v.PostLogin)
	out.Fields = cloneMap(v.Fields)
	out.Actions = cloneMap(v.Actions)
	out.Pagination = cloneMap(v.Pagination)
	out.Table.RowSelectors = slices.Clone(v.Table.RowSelectors)
	out.Table.CellSelector = slices.Clone(v.Table.CellSelector)
	return out
}

func cloneMap(m map[string]Candidates) map[string]Candidates {
	if m == nil {
		return nil
	}
	out := make(map[string]Candidates, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

// Set is the immutable locator configuration.
type Set struct {
	revision  int
	updatedAt time.Time
	current   Variant
	fallback  Variant
	raw       map[string]json.RawMessage
}

// New builds a Set from two variants. The variants are copied.
func New(current, fallback Variant) (*Set, error) {
	s := &Set{current: current.Clone(), fallback: fallback.Clone()}
	s.current.Version = Current
	s.fallback.Version = Fallback
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Set) validate() error {
	if len(s.current.Table.RowSelectors) == 0 {
		return ErrNoRowSelectors
	}
	return nil
}

// Revision is incremented by every successful Save.
func (s *Set) Revision() int { return s.revision }

// UpdatedAt is the time of the last Save.
func (s *Set) UpdatedAt() time.Time { return s.updatedAt }

// Variant returns a copy of the named variant.
func (s *Set) Variant(v Version) Variant {
	if v == Fallback {
		return s.fallback.Clone()
	}
	return s.current.Clone()
}

// Current returns a copy of the current variant.
func (s *Set) Current() Variant { return s.Variant(Current) }

// Fallback returns a copy of the fallback variant.
func (s *Set) Fallback() Variant { return s.Variant(Fallback) }

// WithCurrent returns a new Set whose current variant is v. The revision is
// carried over; Save assigns the next one.
func (s *Set) WithCurrent(v Variant) (*Set, error) {
	next := &Set{
		revision:  s.revision,
		updatedAt: s.updatedAt,
		current:   v.Clone(),
		fallback:  s.fallback.Clone(),
		raw:       s.raw,
	}
	next.current.Version = Current
	if err := next.validate(); err != nil {
		return nil, err
	}
	return next, nil
}

// RowCandidates returns current then fallback row selectors, deduplicated.
func (s *Set) RowCandidates() Candidates {
	return merge(s.current.Table.RowSelectors, s.fallback.Table.RowSelectors)
}

// FieldCandidates returns the candidates for a field: current fields, then
// current actions, then the same from fallback, deduplicated.
func (s *Set) FieldCandidates(field string) Candidates {
	return merge(s.current.Fields[field], s.current.Actions[field],
		s.fallback.Fields[field], s.fallback.Actions[field])
}

// SectionCandidates merges one entry of a named section (login, postLogin,
// pagination) across both variants.
func (s *Set) SectionCandidates(section, key string) Candidates {
	pick := func(v Variant) Candidates {
		switch section {
		case "login":
			return v.Login[key]
		case "postLogin":
			return v.PostLogin[key]
		case "pagination":
			return v.Pagination[key]
		}
		return nil
	}
	return merge(pick(s.current), pick(s.fallback))
}

// SectionKeys returns the keys of a section across both variants, sorted.
func (s *Set) SectionKeys(section string) []string {
	seen := make(map[string]bool)
	for _, v := range []Variant{s.current, s.fallback} {
		var m map[string]Candidates
		switch section {
		case "login":
			m = v.Login
		case "postLogin":
			m = v.PostLogin
		case "pagination":
			m = v.Pagination
		}
		for k := range m {
			seen[k] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Cell returns the cell selector of the current variant, then fallback.
func (s *Set) Cell() string {
	if p := s.current.Table.CellSelector.Primary(); p != "" {
		return p
	}
	return s.fallback.Cell()
}

func merge(lists ...Candidates) Candidates {
	var out Candidates
	seen := make(map[string]bool)
	for _, l := range lists {
		for _, c := range l {
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}
