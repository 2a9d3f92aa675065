package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newColl(ids ...string) *Collection[post] {
	c := NewCollection[post]()
	for _, id := range ids {
		c.Set(post{ID: id})
	}
	return c
}

func TestCollectionSetAppendsOrder(t *testing.T) {
	c := newColl("a", "b")
	assert.Equal(t, []string{"a", "b"}, c.OrderSnapshot())

	// Upsert of an existing entity keeps its slot
	c.Set(post{ID: "a", Likes: 5})
	assert.Equal(t, []string{"a", "b"}, c.OrderSnapshot())

	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 5, got.Likes)
}

func TestCollectionRemove(t *testing.T) {
	c := newColl("a", "b", "c")

	c.Remove("b")
	assert.Equal(t, []string{"a", "c"}, c.OrderSnapshot())
	assert.Equal(t, 2, c.Len())

	// Removing a missing id is a no-op
	c.Remove("zzz")
	assert.Equal(t, 2, c.Len())
}

func TestCollectionMove(t *testing.T) {
	c := newColl("a", "b", "c", "d")

	c.Move("d", 1)
	assert.Equal(t, []string{"a", "d", "b", "c"}, c.OrderSnapshot())

	c.Move("a", 99)
	assert.Equal(t, []string{"d", "b", "c", "a"}, c.OrderSnapshot())

	c.Move("c", -5)
	assert.Equal(t, []string{"c", "d", "b", "a"}, c.OrderSnapshot())

	// Unknown id: no change
	c.Move("zzz", 0)
	assert.Equal(t, []string{"c", "d", "b", "a"}, c.OrderSnapshot())
}

func TestCollectionSetOrder(t *testing.T) {
	c := newColl("a", "b", "c")

	// Unknown ids are dropped, missing entities keep position at the end
	c.SetOrder([]string{"c", "zzz", "a"})
	assert.Equal(t, []string{"c", "a", "b"}, c.OrderSnapshot())

	assert.Equal(t, 0, c.IndexOf("c"))
	assert.Equal(t, -1, c.IndexOf("zzz"))
}

func TestCollectionList(t *testing.T) {
	c := newColl("b", "a")

	listed := c.List()
	assert.Len(t, listed, 2)
	assert.Equal(t, "b", listed[0].ID)
	assert.Equal(t, "a", listed[1].ID)
}
