package speaknote_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/speaknote"
	"github.com/aretw0/speaknote/pkg/adapters/memory"
	"github.com/aretw0/speaknote/pkg/core"
)

// scriptedSource replays fixed fragments and closes the stream.
type scriptedSource struct {
	fragments []string
}

func (s *scriptedSource) Stream(ctx context.Context) (<-chan core.Fragment, error) {
	out := make(chan core.Fragment)
	go func() {
		defer close(out)
		for _, f := range s.fragments {
			select {
			case out <- core.Fragment{Text: f}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// fakeIdentity is an IdentityProvider whose user can change mid-test.
type fakeIdentity struct {
	mu  sync.Mutex
	cur *core.Identity
	ch  chan *core.Identity
}

func newFakeIdentity(user *core.Identity) *fakeIdentity {
	return &fakeIdentity{cur: user, ch: make(chan *core.Identity)}
}

func (f *fakeIdentity) CurrentIdentity() *core.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cur
}

func (f *fakeIdentity) Watch(ctx context.Context) (<-chan *core.Identity, error) {
	return f.ch, nil
}

func (f *fakeIdentity) change(user *core.Identity) {
	f.mu.Lock()
	f.cur = user
	f.mu.Unlock()
	f.ch <- user
}

func newService(t *testing.T, identity core.IdentityProvider, source core.TranscriptionSource, remote *memory.Remote) *speaknote.Service {
	t.Helper()
	svc, err := speaknote.New("", identity, source, speaknote.WithRemote(remote))
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestService_CaptureToSyncedNote(t *testing.T) {
	remote := memory.New()
	svc := newService(t, &core.StaticIdentity{User: &core.Identity{ID: "u1"}},
		&scriptedSource{fragments: []string{"Buy", " milk"}}, remote)

	ctx := context.Background()
	require.NoError(t, svc.Start(ctx))

	session, err := svc.StartCapture(ctx)
	require.NoError(t, err)
	<-session.Done()
	require.NoError(t, session.Stop())
	_, err = session.Commit("Shopping")
	require.NoError(t, err)
	require.NoError(t, svc.Wait(ctx))

	notes := svc.Notes()
	require.Len(t, notes, 1)
	assert.Equal(t, "N1", notes[0].ID)
	assert.Equal(t, "Shopping", notes[0].Title)
	assert.Equal(t, "Buy milk", notes[0].Content)
	assert.Equal(t, core.StateClean, notes[0].SyncState)
	assert.Equal(t, "u1", notes[0].OwnerID)

	stored, err := remote.QueryByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "Buy milk", stored[0].Content)
}

func TestService_DiscardLeavesNoTrace(t *testing.T) {
	remote := memory.New()
	svc := newService(t, &core.StaticIdentity{User: &core.Identity{ID: "u1"}},
		&scriptedSource{fragments: []string{"never mind"}}, remote)

	ctx := context.Background()
	require.NoError(t, svc.Start(ctx))

	session, err := svc.StartCapture(ctx)
	require.NoError(t, err)
	<-session.Done()
	require.NoError(t, session.Discard())
	require.NoError(t, svc.Wait(ctx))

	assert.Empty(t, svc.Notes())
	assert.Equal(t, 0, remote.Calls("create"))
	assert.Nil(t, svc.ActiveCapture())
}

func TestService_SaveEditDelete(t *testing.T) {
	remote := memory.New()
	svc := newService(t, &core.StaticIdentity{User: &core.Identity{ID: "u1"}}, &scriptedSource{}, remote)

	ctx := context.Background()
	require.NoError(t, svc.Start(ctx))

	_, err := svc.SaveNote("", "Shopping", "Buy milk")
	require.NoError(t, err)
	require.NoError(t, svc.Wait(ctx))

	notes := svc.Notes()
	require.Len(t, notes, 1)
	id := notes[0].ID
	assert.False(t, notes[0].IsLocal())

	_, err = svc.SaveNote(id, "Shopping", "Buy milk and bread")
	require.NoError(t, err)
	require.NoError(t, svc.Wait(ctx))
	n, ok := svc.Get(id)
	require.True(t, ok)
	assert.Equal(t, "Buy milk and bread", n.Content)
	assert.Equal(t, int64(2), n.Version)

	require.NoError(t, svc.DeleteNote(id))
	require.NoError(t, svc.Wait(ctx))
	assert.Empty(t, svc.Notes())
	stored, err := remote.QueryByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestService_SignedOut(t *testing.T) {
	remote := memory.New()
	svc := newService(t, &core.StaticIdentity{}, &scriptedSource{fragments: []string{"hello"}}, remote)

	ctx := context.Background()
	require.NoError(t, svc.Start(ctx))

	_, err := svc.SaveNote("", "t", "c")
	assert.ErrorIs(t, err, core.ErrSignedOut)

	// Capture still runs, but the commit is refused at the store boundary.
	session, err := svc.StartCapture(ctx)
	require.NoError(t, err)
	<-session.Done()
	require.NoError(t, session.Stop())
	_, err = session.Commit("t")
	assert.ErrorIs(t, err, core.ErrSignedOut)
}

func TestService_IdentityChange(t *testing.T) {
	remote := memory.New()
	remote.Seed(
		core.Note{ID: "A1", Title: "alice", Content: "c", OwnerID: "alice", Version: 1},
		core.Note{ID: "B1", Title: "bob", Content: "c", OwnerID: "bob", Version: 1},
	)
	identity := newFakeIdentity(&core.Identity{ID: "alice"})
	svc := newService(t, identity, &scriptedSource{}, remote)

	ctx := context.Background()
	require.NoError(t, svc.Start(ctx))
	require.Len(t, svc.Notes(), 1)
	assert.Equal(t, "A1", svc.Notes()[0].ID)

	// Switch users: the cache is rebound and refetched.
	identity.change(&core.Identity{ID: "bob"})
	require.Eventually(t, func() bool {
		notes := svc.Notes()
		return len(notes) == 1 && notes[0].ID == "B1"
	}, 5*time.Second, 10*time.Millisecond)

	// Sign out: the cache is cleared entirely.
	identity.change(nil)
	require.Eventually(t, func() bool {
		return len(svc.Notes()) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestService_SearchServedLocally(t *testing.T) {
	remote := memory.New()
	svc := newService(t, &core.StaticIdentity{User: &core.Identity{ID: "u1"}}, &scriptedSource{}, remote)

	ctx := context.Background()
	require.NoError(t, svc.Start(ctx))

	_, err := svc.SaveNote("", "Shopping", "Buy milk")
	require.NoError(t, err)
	_, err = svc.SaveNote("", "Workout", "Leg day")
	require.NoError(t, err)
	require.NoError(t, svc.Wait(ctx))
	queries := remote.Calls("query")

	got := svc.Search("MILK")
	require.Len(t, got, 1)
	assert.Equal(t, "Shopping", got[0].Title)
	assert.Equal(t, queries, remote.Calls("query"), "search never touches the remote store")
}
