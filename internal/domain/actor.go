package domain

// Actor is the authenticated membership context a caller brings into an
// engine operation. Authentication itself happens upstream; the engines only
// re-check the role so an unauthorized context can never reach a write path.
type Actor struct {
	UserID string
	Role   LedgerRole
}

// RequireWrite returns ErrForbidden unless the actor's role permits writes.
func (a Actor) RequireWrite() error {
	if !a.Role.CanWrite() {
		return ErrForbidden
	}
	return nil
}
