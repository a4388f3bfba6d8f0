package domain

// CategoryIndex is a lookup over a ledger's category rows, built on demand
// from parent pointers. The observed graph depth is at most 2, so the index
// resolves roots with a single parent hop and never follows cycles further.
type CategoryIndex struct {
	byID map[string]Category
}

// NewCategoryIndex builds an index from a flat category listing.
func NewCategoryIndex(cats []Category) *CategoryIndex {
	idx := &CategoryIndex{byID: make(map[string]Category, len(cats))}
	for _, c := range cats {
		idx.byID[c.ID] = c
	}
	return idx
}

// Name returns the category's display name, or fallback when the id is
// unknown (deleted categories referenced by old transactions).
func (idx *CategoryIndex) Name(id, fallback string) string {
	if c, ok := idx.byID[id]; ok {
		return c.Name
	}
	return fallback
}

// Root returns the top-level ancestor id for a category: the category itself
// when it has no parent, otherwise its parent.
func (idx *CategoryIndex) Root(id string) string {
	c, ok := idx.byID[id]
	if !ok || c.ParentID == nil {
		return id
	}
	return *c.ParentID
}
