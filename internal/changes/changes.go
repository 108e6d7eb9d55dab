// Package changes captures field state around a mutation and computes the minimal
// diff written to the audit trail.
//
// A ChangeSet is owned by the mutation that produced it. Before-state is always
// passed explicitly by the caller; nothing here keeps state between calls.
package changes

import "reflect"

// ChangeSet maps a field name to either a raw value (create and delete snapshots)
// or a FieldChange (update diffs).
type ChangeSet map[string]any

// FieldChange is the before/after pair of one updated field.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Tracked exposes a record's audited attributes by name.
type Tracked interface {
	Field(name string) (any, bool)
}

// Snapshot copies the named fields of record. Unknown fields are skipped.
func Snapshot(record Tracked, fields []string) ChangeSet {
	out := make(ChangeSet, len(fields))
	if record == nil {
		return out
	}
	for _, name := range fields {
		if v, ok := record.Field(name); ok {
			out[name] = v
		}
	}
	return out
}

// Diff returns a FieldChange for every named field whose value differs between
// before and after. Values are compared with semantic equality, so two equal
// strings never produce an entry. The result is empty when nothing changed.
func Diff(before, after ChangeSet, fields []string) ChangeSet {
	out := ChangeSet{}
	for _, name := range fields {
		oldValue, newValue := before[name], after[name]
		if reflect.DeepEqual(oldValue, newValue) {
			continue
		}
		out[name] = FieldChange{Old: oldValue, New: newValue}
	}
	return out
}

// Apply replays a diff onto a snapshot. Apply(before, Diff(before, after, f))
// reproduces after on the fields f.
func Apply(before, diff ChangeSet) ChangeSet {
	out := make(ChangeSet, len(before))
	for k, v := range before {
		out[k] = v
	}
	for k, v := range diff {
		if change, ok := v.(FieldChange); ok {
			out[k] = change.New
		}
	}
	return out
}

// IsEmpty reports whether the set records no fields.
func (c ChangeSet) IsEmpty() bool {
	return len(c) == 0
}
