package updater

import (
	"slices"
	"time"

	"github.com/hazyhaar/locguard/locset"
	"github.com/hazyhaar/locguard/mining"
)

// Sections a Change can touch.
const (
	SectionRows    = "table.rowSelectors"
	SectionFields  = "fields"
	SectionActions = "actions"
)

// RowClassField is the Change.Field of a row-class update.
const RowClassField = "rowClass"

// Change is one change-log entry.
type Change struct {
	Field   string    `json:"field"`
	Section string    `json:"section"`
	Old     string    `json:"old"`
	New     string    `json:"new"`
	At      time.Time `json:"at"`
}

// Plan computes the next Set for a mining result without touching disk.
// It returns set itself and no changes when the result adds nothing.
//
// Row class: inserted second in rowSelectors, or replacing the slot named by
// table.autoRowSelector; the first entry and any later entries are kept.
// Fields: the mined locator becomes the primary candidate, previous
// candidates follow it. Action-state locators go to actions.
func Plan(set *locset.Set, res *mining.Result, at time.Time) (*locset.Set, []Change, error) {
	cur := set.Current()
	var changes []Change

	if res.RowClass != "" {
		if old, ok := planRowClass(&cur.Table, res.RowClass); ok {
			changes = append(changes, Change{
				Field: RowClassField, Section: SectionRows, Old: old, New: res.RowClass, At: at,
			})
		}
	}

	for _, name := range res.FieldNames() {
		m := res.Fields[name]
		section, target := SectionFields, &cur.Fields
		if m.State == mining.StateAction {
			section, target = SectionActions, &cur.Actions
		}
		if *target == nil {
			*target = make(map[string]locset.Candidates)
		}
		old := (*target)[name]
		if old.Primary() == m.Locator {
			continue
		}
		(*target)[name] = promote(old, m.Locator)
		changes = append(changes, Change{
			Field: name, Section: section, Old: old.Primary(), New: m.Locator, At: at,
		})
	}

	if len(changes) == 0 {
		return set, nil, nil
	}
	next, err := set.WithCurrent(cur)
	if err != nil {
		return nil, nil, err
	}
	return next, changes, nil
}

// planRowClass applies the row-class protocol to t and returns the replaced
// value. ok is false when cls is already present.
func planRowClass(t *locset.Table, cls string) (old string, ok bool) {
	if t.RowSelectors.Contains(cls) {
		return "", false
	}
	if i := slices.Index(t.RowSelectors, t.AutoRowSelector); t.AutoRowSelector != "" && i >= 1 {
		old = t.RowSelectors[i]
		t.RowSelectors[i] = cls
	} else {
		at := min(1, len(t.RowSelectors))
		t.RowSelectors = slices.Insert(t.RowSelectors, at, cls)
	}
	t.AutoRowSelector = cls
	return old, true
}

// promote puts loc first and keeps every other candidate in order.
func promote(c locset.Candidates, loc string) locset.Candidates {
	out := locset.Candidates{loc}
	for _, x := range c {
		if x != loc {
			out = append(out, x)
		}
	}
	return out
}
