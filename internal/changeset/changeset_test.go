package changeset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/changepipe/model"
)

func change(path string) model.FileChange {
	return model.FileChange{FilePath: path, NewContent: "x", Status: model.StatusAccepted}
}

func TestAddBatch_PreservesOrderAndForcesPending(t *testing.T) {
	s := New()
	s.Add(change("a"))
	added := s.AddBatch([]model.FileChange{change("b"), change("c")})

	require.Len(t, added, 2)
	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{list[0].FilePath, list[1].FilePath, list[2].FilePath})
	for _, c := range list {
		assert.Equal(t, model.StatusPending, c.Status)
		assert.NotEmpty(t, c.ID)
	}
}

func TestAdd_DuplicateIDGetsFreshOne(t *testing.T) {
	s := New()
	first := s.Add(model.FileChange{ID: "same", FilePath: "a"})
	second := s.Add(model.FileChange{ID: "same", FilePath: "b"})
	batch := s.AddBatch([]model.FileChange{{ID: "x", FilePath: "c"}, {ID: "x", FilePath: "d"}})

	assert.Equal(t, "same", first.ID)
	assert.NotEqual(t, "same", second.ID)
	assert.Equal(t, "x", batch[0].ID)
	assert.NotEqual(t, "x", batch[1].ID)
	assert.Equal(t, 4, s.Len())
}

func TestTransitions(t *testing.T) {
	s := New()
	a := s.Add(change("a"))
	b := s.Add(change("b"))

	assert.False(t, s.Reject("missing"))
	assert.False(t, s.MarkAccepted("missing"))

	assert.True(t, s.MarkAccepted(a.ID))
	assert.True(t, s.MarkAccepted(a.ID), "repeating a transition is a no-op")
	assert.False(t, s.Reject(a.ID), "accepted cannot become rejected")

	assert.True(t, s.Reject(b.ID))
	assert.True(t, s.Reject(b.ID))
	assert.False(t, s.MarkAccepted(b.ID), "rejected cannot become accepted")

	pending, accepted, rejected := s.Counts()
	assert.Equal(t, 0, pending)
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, rejected)
}

func TestRejectAll(t *testing.T) {
	s := New()
	a := s.Add(change("a"))
	s.AddBatch([]model.FileChange{change("b"), change("c")})
	s.MarkAccepted(a.ID)

	assert.Equal(t, 2, s.RejectAll())
	assert.Equal(t, 0, s.RejectAll())
	assert.Empty(t, s.Pending())

	got, ok := s.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, model.StatusAccepted, got.Status)
}

func TestClear(t *testing.T) {
	s := New()
	a := s.Add(change("a"))
	s.Clear()

	assert.Equal(t, 0, s.Len())
	_, ok := s.Get(a.ID)
	assert.False(t, ok)
}

func TestPublishedSlicesAreNeverMutated(t *testing.T) {
	s := New()
	a := s.Add(change("a"))
	before := s.List()

	s.MarkAccepted(a.ID)

	assert.Equal(t, model.StatusPending, before[0].Status)
	assert.Equal(t, model.StatusAccepted, s.List()[0].Status)
}

func TestSubscribe(t *testing.T) {
	s := New()
	var seen [][]model.FileChange
	cancel := s.Subscribe(func(list []model.FileChange) {
		seen = append(seen, list)
	})

	a := s.Add(change("a"))
	s.Reject(a.ID)
	s.Reject(a.ID) // no-op, no notification
	cancel()
	s.Clear()

	require.Len(t, seen, 2)
	assert.Equal(t, model.StatusPending, seen[0][0].Status)
	assert.Equal(t, model.StatusRejected, seen[1][0].Status)
}
