package store

// UpdateEntity builds a patch that transforms one entity in place.
// Missing entities are a no-op, which keeps reconciliation of events
// for unfetched entities harmless.
func UpdateEntity[E Entity](id string, fn func(E) E) Patch[E] {
	return func(c *Collection[E]) {
		if e, ok := c.Get(id); ok {
			c.Set(fn(e))
		}
	}
}

// InsertEntity builds a patch that upserts an entity
func InsertEntity[E Entity](e E) Patch[E] {
	return func(c *Collection[E]) {
		c.Set(e)
	}
}

// RemoveEntity builds a patch that deletes an entity
func RemoveEntity[E Entity](id string) Patch[E] {
	return func(c *Collection[E]) {
		c.Remove(id)
	}
}
