package store

// Entity is any domain object subject to optimistic mutation,
// identified by a stable string id.
type Entity interface {
	EntityID() string
}

// Collection holds a store's entities plus an explicit display order,
// so reordering is expressible as a patch like any other mutation.
// It is not safe for concurrent use; the owning Store serializes access.
type Collection[E Entity] struct {
	items map[string]E
	order []string
}

// NewCollection creates an empty collection
func NewCollection[E Entity]() *Collection[E] {
	return &Collection[E]{
		items: make(map[string]E),
	}
}

// Get returns the entity with the given id
func (c *Collection[E]) Get(id string) (E, bool) {
	e, ok := c.items[id]
	return e, ok
}

// Set upserts an entity. New entities append to the display order.
func (c *Collection[E]) Set(e E) {
	id := e.EntityID()
	if _, exists := c.items[id]; !exists {
		c.order = append(c.order, id)
	}
	c.items[id] = e
}

// Remove deletes an entity and its order slot
func (c *Collection[E]) Remove(id string) {
	if _, exists := c.items[id]; !exists {
		return
	}
	delete(c.items, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of entities
func (c *Collection[E]) Len() int {
	return len(c.items)
}

// Contains reports whether an entity with the given id exists
func (c *Collection[E]) Contains(id string) bool {
	_, ok := c.items[id]
	return ok
}

// List returns entities in display order
func (c *Collection[E]) List() []E {
	result := make([]E, 0, len(c.order))
	for _, id := range c.order {
		if e, ok := c.items[id]; ok {
			result = append(result, e)
		}
	}
	return result
}

// IndexOf returns the display position of an entity, or -1
func (c *Collection[E]) IndexOf(id string) int {
	for i, oid := range c.order {
		if oid == id {
			return i
		}
	}
	return -1
}

// Move relocates an entity to a new display position. Out-of-range
// targets clamp to the list bounds.
func (c *Collection[E]) Move(id string, toIndex int) {
	from := c.IndexOf(id)
	if from < 0 {
		return
	}

	c.order = append(c.order[:from], c.order[from+1:]...)

	if toIndex < 0 {
		toIndex = 0
	}
	if toIndex > len(c.order) {
		toIndex = len(c.order)
	}

	c.order = append(c.order[:toIndex], append([]string{id}, c.order[toIndex:]...)...)
}

// OrderSnapshot returns a copy of the current display order
func (c *Collection[E]) OrderSnapshot() []string {
	snapshot := make([]string, len(c.order))
	copy(snapshot, c.order)
	return snapshot
}

// SetOrder replaces the display order. Ids not present in the
// collection are ignored; entities missing from the new order keep
// their relative position at the end.
func (c *Collection[E]) SetOrder(order []string) {
	seen := make(map[string]bool, len(order))
	next := make([]string, 0, len(c.order))
	for _, id := range order {
		if _, ok := c.items[id]; ok && !seen[id] {
			next = append(next, id)
			seen[id] = true
		}
	}
	for _, id := range c.order {
		if !seen[id] {
			next = append(next, id)
			seen[id] = true
		}
	}
	c.order = next
}
