package changes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type status string

type fakeRecord map[string]any

func (r fakeRecord) Field(name string) (any, bool) {
	v, ok := r[name]
	return v, ok
}

var fields = []string{"title", "description", "status", "country"}

func TestSnapshot(t *testing.T) {
	t.Run("copies tracked fields only", func(t *testing.T) {
		rec := fakeRecord{"title": "Dam", "status": "draft", "secret": "x"}
		snap := Snapshot(rec, fields)
		assert.Equal(t, ChangeSet{"title": "Dam", "status": "draft"}, snap)
	})

	t.Run("nil record yields empty set", func(t *testing.T) {
		assert.True(t, Snapshot(nil, fields).IsEmpty())
	})

	t.Run("snapshot is detached from the record", func(t *testing.T) {
		rec := fakeRecord{"title": "Dam"}
		snap := Snapshot(rec, fields)
		rec["title"] = "Bridge"
		assert.Equal(t, "Dam", snap["title"])
	})
}

func TestDiff(t *testing.T) {
	before := ChangeSet{"title": "Dam", "description": "d", "status": "draft", "country": "USA"}

	t.Run("identical state yields empty diff", func(t *testing.T) {
		same := ChangeSet{"title": "Dam", "description": "d", "status": "draft", "country": "USA"}
		assert.True(t, Diff(before, same, fields).IsEmpty())
	})

	t.Run("equal values with distinct backing strings are not changes", func(t *testing.T) {
		title := string([]byte("Dam"))
		after := ChangeSet{"title": title, "description": "d", "status": "draft", "country": "USA"}
		assert.True(t, Diff(before, after, fields).IsEmpty())
	})

	t.Run("enum values compare by value", func(t *testing.T) {
		a := ChangeSet{"status": status("active")}
		b := ChangeSet{"status": status("active")}
		assert.True(t, Diff(a, b, fields).IsEmpty())
	})

	t.Run("records old and new for changed fields only", func(t *testing.T) {
		after := ChangeSet{"title": "Dam v2", "description": "d", "status": "active", "country": "USA"}
		diff := Diff(before, after, fields)
		require.Len(t, diff, 2)
		assert.Equal(t, FieldChange{Old: "Dam", New: "Dam v2"}, diff["title"])
		assert.Equal(t, FieldChange{Old: "draft", New: "active"}, diff["status"])
	})

	t.Run("untracked fields are ignored", func(t *testing.T) {
		after := ChangeSet{"title": "Dam", "description": "d", "status": "draft", "country": "USA", "updated_at": "now"}
		assert.True(t, Diff(before, after, fields).IsEmpty())
	})
}

// TestDiffLaw checks that applying a diff to before reproduces after.
func TestDiffLaw(t *testing.T) {
	cases := []struct {
		name   string
		before ChangeSet
		after  ChangeSet
	}{
		{"single field", ChangeSet{"title": "a", "status": "draft"}, ChangeSet{"title": "b", "status": "draft"}},
		{"all fields", ChangeSet{"title": "a", "description": "x", "status": "draft", "country": "USA"},
			ChangeSet{"title": "b", "description": "y", "status": "archived", "country": "Canada"}},
		{"cleared description", ChangeSet{"title": "a", "description": "x"}, ChangeSet{"title": "a", "description": ""}},
		{"unchanged", ChangeSet{"title": "a"}, ChangeSet{"title": "a"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			diff := Diff(tc.before, tc.after, fields)
			assert.Equal(t, diff.IsEmpty(), Diff(tc.after, tc.before, fields).IsEmpty())
			got := Apply(tc.before, diff)
			for _, f := range fields {
				assert.Equal(t, tc.after[f], got[f], f)
			}
		})
	}
}
