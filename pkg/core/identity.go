package core

import "context"

// Identity is the authenticated user as reported by the session token holder.
type Identity struct {
	ID string
}

// IdentityProvider supplies the current authenticated identity.
//
// The engine only reads it: a nil identity means "anonymous" (signed out).
// Watch delivers the new identity (possibly nil) whenever it changes, so the
// engine can trigger a full resync or clear the local store.
type IdentityProvider interface {
	CurrentIdentity() *Identity
	Watch(ctx context.Context) (<-chan *Identity, error)
}

// StaticIdentity is a trivial IdentityProvider for a fixed user. Useful for
// CLI usage and tests where no real session token holder exists.
type StaticIdentity struct {
	User *Identity
}

func (s *StaticIdentity) CurrentIdentity() *Identity { return s.User }

// Watch returns a channel that never fires; a static identity never changes.
func (s *StaticIdentity) Watch(ctx context.Context) (<-chan *Identity, error) {
	ch := make(chan *Identity)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}
