package locset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"
)

// The artifact is shared with the extractor, which may carry keys of its
// own. Every object is decoded twice: once into the typed view and once
// into a raw map, and encoding starts from the raw map so unknown keys and
// untouched entries are written back as they were read.

type envelope struct {
	Revision  int       `json:"revision"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
	Current   Variant   `json:"current"`
	Fallback  Variant   `json:"fallback"`
}

// Decode parses an artifact.
func Decode(data []byte) (*Set, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("locset: decode: %w", err)
	}
	raw, err := rawObject(data)
	if err != nil {
		return nil, fmt.Errorf("locset: decode: %w", err)
	}
	s, err := New(env.Current, env.Fallback)
	if err != nil {
		return nil, err
	}
	s.revision = env.Revision
	s.updatedAt = env.UpdatedAt
	s.raw = raw
	return s, nil
}

// MarshalJSON writes the artifact layout { revision, updatedAt, current, fallback }
// plus any other top-level key the artifact was read with.
func (s *Set) MarshalJSON() ([]byte, error) {
	out := maps.Clone(s.raw)
	if out == nil {
		out = make(map[string]json.RawMessage, 4)
	}
	var err error
	if out["revision"], err = json.Marshal(s.revision); err != nil {
		return nil, err
	}
	if s.updatedAt.IsZero() {
		delete(out, "updatedAt")
	} else if out["updatedAt"], err = json.Marshal(s.updatedAt); err != nil {
		return nil, err
	}
	if out["current"], err = json.Marshal(s.current); err != nil {
		return nil, err
	}
	if out["fallback"], err = json.Marshal(s.fallback); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a variant and keeps its raw form.
func (v *Variant) UnmarshalJSON(data []byte) error {
	type plain Variant
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	raw, err := rawObject(data)
	if err != nil {
		return err
	}
	p.raw = raw
	*v = Variant(p)
	return nil
}

// MarshalJSON writes the known sections over the raw form. Section entries
// whose candidates did not change keep their original bytes; changed
// entries keep the original string-or-list shape.
func (v Variant) MarshalJSON() ([]byte, error) {
	out := maps.Clone(v.raw)
	if out == nil {
		out = make(map[string]json.RawMessage, 6)
	}
	sections := []struct {
		key string
		m   map[string]Candidates
	}{
		{"login", v.Login},
		{"postLogin", v.PostLogin},
		{"fields", v.Fields},
		{"actions", v.Actions},
		{"pagination", v.Pagination},
	}
	for _, sec := range sections {
		b, err := encodeSection(v.raw[sec.key], sec.m)
		if err != nil {
			return nil, fmt.Errorf("locset: encode %s: %w", sec.key, err)
		}
		if b == nil {
			delete(out, sec.key)
			continue
		}
		out[sec.key] = b
	}
	b, err := json.Marshal(v.Table)
	if err != nil {
		return nil, err
	}
	out["table"] = b
	return json.Marshal(out)
}

// UnmarshalJSON decodes a table and keeps its raw form.
func (t *Table) UnmarshalJSON(data []byte) error {
	type plain Table
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	raw, err := rawObject(data)
	if err != nil {
		return err
	}
	p.raw = raw
	*t = Table(p)
	return nil
}

// MarshalJSON always writes rowSelectors as a list.
func (t Table) MarshalJSON() ([]byte, error) {
	out := maps.Clone(t.raw)
	if out == nil {
		out = make(map[string]json.RawMessage, 3)
	}
	rows := []string(t.RowSelectors)
	if rows == nil {
		rows = []string{}
	}
	var err error
	if out["rowSelectors"], err = json.Marshal(rows); err != nil {
		return nil, err
	}
	if prev, had := t.raw["cellSelector"]; len(t.CellSelector) == 0 && !had {
		delete(out, "cellSelector")
	} else if out["cellSelector"], err = encodeEntry(prev, t.CellSelector); err != nil {
		return nil, err
	}
	if _, had := t.raw["autoRowSelector"]; t.AutoRowSelector == "" && !had {
		delete(out, "autoRowSelector")
	} else if out["autoRowSelector"], err = json.Marshal(t.AutoRowSelector); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// encodeSection returns nil when the section should be omitted.
func encodeSection(orig json.RawMessage, m map[string]Candidates) (json.RawMessage, error) {
	if len(m) == 0 {
		if orig == nil {
			return nil, nil
		}
		return json.RawMessage("{}"), nil
	}
	prev, err := rawObject(orig)
	if err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(m))
	for k, c := range m {
		if out[k], err = encodeEntry(prev[k], c); err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
	}
	return json.Marshal(out)
}

// encodeEntry returns orig when it still decodes to c. Otherwise c is
// written as a list if orig was one, else in the default shape.
func encodeEntry(orig json.RawMessage, c Candidates) (json.RawMessage, error) {
	if orig == nil {
		return json.Marshal(c)
	}
	var was Candidates
	if err := json.Unmarshal(orig, &was); err == nil && slices.Equal(was, c) {
		return orig, nil
	}
	if t := bytes.TrimSpace(orig); len(t) > 0 && t[0] == '[' {
		list := []string(c)
		if list == nil {
			list = []string{}
		}
		return json.Marshal(list)
	}
	return json.Marshal(c)
}

// rawObject splits a JSON object into its members. null and empty input
// yield a nil map.
func rawObject(data []byte) (map[string]json.RawMessage, error) {
	if t := bytes.TrimSpace(data); len(t) == 0 || bytes.Equal(t, []byte("null")) {
		return nil, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
