package syncer_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/speaknote/pkg/adapters/memory"
	"github.com/aretw0/speaknote/pkg/core"
	"github.com/aretw0/speaknote/pkg/store"
	"github.com/aretw0/speaknote/pkg/syncer"
)

// fastBackoff keeps retry tests quick.
var fastBackoff = syncer.Backoff{Base: time.Millisecond, Factor: 2, Cap: 10 * time.Millisecond}

func newEngine(t *testing.T) (*store.Store, *memory.Remote, *syncer.Engine) {
	t.Helper()
	st := store.New("u1", nil, 0)
	remote := memory.New()
	e := syncer.New(st, remote, syncer.Config{Backoff: fastBackoff})
	return st, remote, e
}

func wait(t *testing.T, e *syncer.Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Wait(ctx))
}

func TestEngine_CreateFlow(t *testing.T) {
	st, remote, e := newEngine(t)
	e.Start(context.Background())

	n, err := st.UpsertLocal(core.Note{ID: "local-1", Title: "Shopping", Content: "Buy milk"})
	require.NoError(t, err)
	e.Enqueue(n.ID)
	wait(t, e)

	// The temporary id is replaced by the remote-assigned one.
	_, ok := st.Get("local-1")
	assert.False(t, ok)
	got, ok := st.Get("N1")
	require.True(t, ok)
	assert.Equal(t, core.StateClean, got.SyncState)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, "Buy milk", got.Content)
	assert.Equal(t, 1, remote.Calls("create"))
}

func TestEngine_UpdateFlow(t *testing.T) {
	st, remote, e := newEngine(t)
	remote.Seed(core.Note{ID: "N1", Title: "t", Content: "old", OwnerID: "u1", Version: 1})
	st.Load([]core.Note{{ID: "N1", Title: "t", Content: "old", OwnerID: "u1", Version: 1}})
	e.Start(context.Background())

	_, err := st.UpsertLocal(core.Note{ID: "N1", Title: "t", Content: "new"})
	require.NoError(t, err)
	e.Enqueue("N1")
	wait(t, e)

	got, _ := st.Get("N1")
	assert.Equal(t, core.StateClean, got.SyncState)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, 1, remote.Calls("update"))
}

func TestEngine_CoalesceEdits(t *testing.T) {
	st, remote, e := newEngine(t)

	// Engine not started: both edits queue while "offline".
	n, err := st.UpsertLocal(core.Note{ID: "local-1", Title: "Shopping", Content: "Buy milk"})
	require.NoError(t, err)
	e.Enqueue(n.ID)
	_, err = st.UpsertLocal(core.Note{ID: "local-1", Title: "Shopping", Content: "Buy milk and bread"})
	require.NoError(t, err)
	e.Enqueue(n.ID)

	e.Start(context.Background())
	wait(t, e)

	assert.Equal(t, 1, remote.Calls("create"), "two queued edits must coalesce into one call")
	got, ok := st.Get("N1")
	require.True(t, ok)
	assert.Equal(t, "Buy milk and bread", got.Content)
	assert.Equal(t, core.StateClean, got.SyncState)
}

func TestEngine_UpdateThenDeleteCoalesces(t *testing.T) {
	st, remote, e := newEngine(t)
	remote.Seed(core.Note{ID: "N1", Title: "t", Content: "c", OwnerID: "u1", Version: 1})
	st.Load([]core.Note{{ID: "N1", Title: "t", Content: "c", OwnerID: "u1", Version: 1}})

	// Offline: edit, then delete, then reconnect.
	_, err := st.UpsertLocal(core.Note{ID: "N1", Title: "t", Content: "edited"})
	require.NoError(t, err)
	e.Enqueue("N1")
	require.NoError(t, st.MarkDeleted("N1"))
	e.Enqueue("N1")

	e.Start(context.Background())
	wait(t, e)

	assert.Equal(t, 0, remote.Calls("update"), "the superseded update must never be sent")
	assert.Equal(t, 1, remote.Calls("delete"))
	assert.Equal(t, 0, st.Len())
	notes, err := remote.QueryByOwner(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestEngine_DeleteOfUnsentCreateIsLocal(t *testing.T) {
	st, remote, e := newEngine(t)
	e.Start(context.Background())

	n, err := st.UpsertLocal(core.Note{ID: "local-1", Title: "t", Content: "c"})
	require.NoError(t, err)
	require.NoError(t, st.MarkDeleted(n.ID))
	e.Enqueue(n.ID)
	wait(t, e)

	assert.Equal(t, 0, st.Len())
	assert.Equal(t, 0, remote.Calls("create"))
	assert.Equal(t, 0, remote.Calls("delete"), "nothing exists remotely, so nothing is deleted")
}

func TestEngine_TransientRetry(t *testing.T) {
	st, remote, e := newEngine(t)
	remote.FailNext(
		&core.TransientError{Err: errors.New("connection refused")},
		&core.TransientError{Err: errors.New("connection refused")},
	)
	e.Start(context.Background())

	n, err := st.UpsertLocal(core.Note{ID: "local-1", Title: "t", Content: "c"})
	require.NoError(t, err)
	e.Enqueue(n.ID)
	wait(t, e)

	assert.Equal(t, 3, remote.Calls("create"), "two failures then success")
	got, ok := st.Get("N1")
	require.True(t, ok)
	assert.Equal(t, core.StateClean, got.SyncState)
}

func TestEngine_PermanentFailure(t *testing.T) {
	st, remote, e := newEngine(t)
	remote.FailNext(&core.ValidationError{Field: "content", Reason: "payload too large"})
	e.Start(context.Background())

	n, err := st.UpsertLocal(core.Note{ID: "local-1", Title: "t", Content: "c"})
	require.NoError(t, err)
	e.Enqueue(n.ID)
	wait(t, e)

	assert.Equal(t, 1, remote.Calls("create"), "permanent failures are not retried")
	got, _ := st.Get("local-1")
	assert.Equal(t, core.StatePendingCreate, got.SyncState, "local content survives the failure")
	assert.Contains(t, got.LastError, "payload too large")
}

func TestEngine_ConflictAndOverwrite(t *testing.T) {
	st, remote, e := newEngine(t)
	remote.Seed(core.Note{ID: "N1", Title: "t", Content: "base", OwnerID: "u1", Version: 1})
	st.Load([]core.Note{{ID: "N1", Title: "t", Content: "base", OwnerID: "u1", Version: 1}})
	e.Start(context.Background())

	// Another device edits the note first.
	require.True(t, remote.Mutate("N1", core.Fields{Title: "t", Content: "theirs"}))

	_, err := st.UpsertLocal(core.Note{ID: "N1", Title: "t", Content: "mine"})
	require.NoError(t, err)
	e.Enqueue("N1")
	wait(t, e)

	got, _ := st.Get("N1")
	require.Equal(t, core.StateConflict, got.SyncState)
	assert.Equal(t, "mine", got.Content, "conflict preserves the local content")
	latest, ok := st.LatestRemote("N1")
	require.True(t, ok)
	assert.Equal(t, "theirs", latest.Content)

	// User keeps the local version.
	require.NoError(t, e.ResolveOverwrite(context.Background(), "N1"))
	wait(t, e)

	got, _ = st.Get("N1")
	assert.Equal(t, core.StateClean, got.SyncState)
	assert.Equal(t, "mine", got.Content)
	assert.Equal(t, int64(3), got.Version, "re-based on the conflicting version, then accepted")
	notes, err := remote.QueryByOwner(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "mine", notes[0].Content)
}

func TestEngine_ConflictAndDiscard(t *testing.T) {
	st, remote, e := newEngine(t)
	remote.Seed(core.Note{ID: "N1", Title: "t", Content: "base", OwnerID: "u1", Version: 1})
	st.Load([]core.Note{{ID: "N1", Title: "t", Content: "base", OwnerID: "u1", Version: 1}})
	e.Start(context.Background())

	require.True(t, remote.Mutate("N1", core.Fields{Title: "t", Content: "theirs"}))
	_, err := st.UpsertLocal(core.Note{ID: "N1", Title: "t", Content: "mine"})
	require.NoError(t, err)
	e.Enqueue("N1")
	wait(t, e)

	require.NoError(t, e.ResolveDiscard(context.Background(), "N1"))
	wait(t, e)

	got, _ := st.Get("N1")
	assert.Equal(t, core.StateClean, got.SyncState)
	assert.Equal(t, "theirs", got.Content)
	assert.Equal(t, int64(2), got.Version)
}

func TestEngine_Resync(t *testing.T) {
	st, remote, e := newEngine(t)
	remote.Seed(
		core.Note{ID: "N1", Title: "t", Content: "server", OwnerID: "u1", Version: 2, UpdatedAt: time.Now()},
		core.Note{ID: "N2", Title: "t", Content: "foreign", OwnerID: "someone-else", Version: 1},
	)
	e.Start(context.Background())

	// A local create made while offline must survive the resync.
	n, err := st.UpsertLocal(core.Note{ID: "local-1", Title: "t", Content: "offline"})
	require.NoError(t, err)

	require.NoError(t, e.Resync(context.Background()))
	wait(t, e)

	assert.Equal(t, 2, st.Len(), "owner's note plus the preserved local create")
	_, ok := st.Get("N2")
	assert.False(t, ok, "foreign notes are never cached")
	got, ok := st.Get("N1")
	require.True(t, ok)
	assert.Equal(t, "server", got.Content)

	// The preserved create was re-enqueued and synced.
	_, ok = st.Get(n.ID)
	assert.False(t, ok)
	notes, err := remote.QueryByOwner(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, notes, 2)
}

func TestEngine_ResyncSignedOut(t *testing.T) {
	st := store.New("", nil, 0)
	e := syncer.New(st, memory.New(), syncer.Config{Backoff: fastBackoff})
	e.Start(context.Background())

	err := e.Resync(context.Background())
	assert.ErrorIs(t, err, core.ErrSignedOut)
}

func TestEngine_RacingEditDuringCreate(t *testing.T) {
	st, remote, e := newEngine(t)
	st.SetClock(func() time.Time { return time.Unix(1000, 0) })

	n, err := st.UpsertLocal(core.Note{ID: "local-1", Title: "t", Content: "first"})
	require.NoError(t, err)
	e.Enqueue(n.ID)

	// The edit lands before the engine comes online, after the enqueue. Once
	// the create is acknowledged the newer content must still be pushed.
	st.SetClock(func() time.Time { return time.Unix(2000, 0) })
	_, err = st.UpsertLocal(core.Note{ID: "local-1", Title: "t", Content: "second"})
	require.NoError(t, err)

	e.Start(context.Background())
	wait(t, e)

	got, ok := st.Get("N1")
	require.True(t, ok)
	assert.Equal(t, core.StateClean, got.SyncState)
	assert.Equal(t, "second", got.Content)
	notes, err := remote.QueryByOwner(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "second", notes[0].Content)
}

func TestEngine_Reset(t *testing.T) {
	st, remote, e := newEngine(t)

	n, err := st.UpsertLocal(core.Note{ID: "local-1", Title: "t", Content: "c"})
	require.NoError(t, err)
	e.Enqueue(n.ID)

	// Sign-out before the engine ever started: the queue is dropped.
	e.Reset()
	st.Reset("")
	e.Start(context.Background())
	wait(t, e)

	assert.Equal(t, 0, remote.Calls("create"))
}

// gatedRemote blocks updates and deletes until released, so a test can hold
// a call in flight while it mutates state around it.
type gatedRemote struct {
	*memory.Remote
	entered chan struct{}
	release chan struct{}
}

func newGatedRemote(inner *memory.Remote) *gatedRemote {
	return &gatedRemote{
		Remote:  inner,
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (r *gatedRemote) hold() {
	select {
	case r.entered <- struct{}{}:
	default:
	}
	<-r.release
}

func (r *gatedRemote) Update(ctx context.Context, id string, baseVersion int64, fields core.Fields) (core.UpdateResult, error) {
	r.hold()
	return r.Remote.Update(ctx, id, baseVersion, fields)
}

func (r *gatedRemote) Delete(ctx context.Context, id string, baseVersion int64) error {
	r.hold()
	return r.Remote.Delete(ctx, id, baseVersion)
}

func TestEngine_IdentitySwitchDuringSync(t *testing.T) {
	st := store.New("A", nil, 0)
	inner := memory.New()
	remote := newGatedRemote(inner)
	e := syncer.New(st, remote, syncer.Config{Backoff: fastBackoff})
	inner.Seed(core.Note{ID: "N1", Title: "t", Content: "c", OwnerID: "A", Version: 1})
	st.Load([]core.Note{{ID: "N1", Title: "t", Content: "c", OwnerID: "A", Version: 1}})
	e.Start(context.Background())

	_, err := st.UpsertLocal(core.Note{ID: "N1", Title: "t", Content: "edited"})
	require.NoError(t, err)
	e.Enqueue("N1")
	<-remote.entered

	// The user switches accounts while the update is in flight; the late
	// acknowledgement must not repopulate the new user's cache.
	e.Reset()
	st.Reset("B")
	close(remote.release)
	wait(t, e)

	assert.Equal(t, 0, st.Len(), "the previous user's note must not leak across identities")
}

func TestEngine_EditDuringDeleteRecreates(t *testing.T) {
	st := store.New("u1", nil, 0)
	inner := memory.New()
	remote := newGatedRemote(inner)
	e := syncer.New(st, remote, syncer.Config{Backoff: fastBackoff})
	inner.Seed(core.Note{ID: "N1", Title: "t", Content: "c", OwnerID: "u1", Version: 1})
	st.Load([]core.Note{{ID: "N1", Title: "t", Content: "c", OwnerID: "u1", Version: 1}})
	e.Start(context.Background())

	require.NoError(t, st.MarkDeleted("N1"))
	e.Enqueue("N1")
	<-remote.entered

	// The user writes the note again while the delete is in flight; once the
	// delete is acknowledged the content must be created anew.
	_, err := st.UpsertLocal(core.Note{ID: "N1", Title: "t", Content: "back again"})
	require.NoError(t, err)
	close(remote.release)
	wait(t, e)

	require.Equal(t, 1, st.Len(), "the resurrected note must survive the delete confirmation")
	notes, err := inner.QueryByOwner(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "back again", notes[0].Content)
	got, ok := st.Get(notes[0].ID)
	require.True(t, ok)
	assert.Equal(t, core.StateClean, got.SyncState)
}

// overlapRemote flags any two calls in flight for the same note at once,
// which would break per-note ordering.
type overlapRemote struct {
	*memory.Remote
	mu       sync.Mutex
	inflight map[string]int
	overlap  bool
}

func (r *overlapRemote) enter(id string) {
	r.mu.Lock()
	r.inflight[id]++
	if r.inflight[id] > 1 {
		r.overlap = true
	}
	r.mu.Unlock()
}

func (r *overlapRemote) exit(id string) {
	r.mu.Lock()
	r.inflight[id]--
	r.mu.Unlock()
}

func (r *overlapRemote) overlapped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overlap
}

func (r *overlapRemote) Create(ctx context.Context, n core.Note) (core.CreateResult, error) {
	r.enter(n.ID)
	defer r.exit(n.ID)
	return r.Remote.Create(ctx, n)
}

func (r *overlapRemote) Update(ctx context.Context, id string, baseVersion int64, fields core.Fields) (core.UpdateResult, error) {
	r.enter(id)
	defer r.exit(id)
	return r.Remote.Update(ctx, id, baseVersion, fields)
}

func (r *overlapRemote) Delete(ctx context.Context, id string, baseVersion int64) error {
	r.enter(id)
	defer r.exit(id)
	return r.Remote.Delete(ctx, id, baseVersion)
}

func TestEngine_RenamedNoteKeepsSingleWorker(t *testing.T) {
	// Hammer the durable id while the create's rename is landing; at most one
	// call may ever be in flight for the note.
	for i := 0; i < 200; i++ {
		st := store.New("u1", nil, 0)
		remote := &overlapRemote{Remote: memory.New(), inflight: make(map[string]int)}
		e := syncer.New(st, remote, syncer.Config{Backoff: fastBackoff})
		e.Start(context.Background())

		n, err := st.UpsertLocal(core.Note{ID: "local-1", Title: "t", Content: "first"})
		require.NoError(t, err)
		e.Enqueue(n.ID)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < 50; j++ {
				if _, ok := st.Get("N1"); ok {
					_, _ = st.UpsertLocal(core.Note{ID: "N1", Title: "t", Content: "edit"})
				}
				e.Enqueue("N1")
			}
		}()
		<-done
		wait(t, e)
		require.False(t, remote.overlapped(), "two workers drove the same note concurrently")
	}
}

// bareConflictRemote strips the latest copy from conflict errors, as a
// backend that only reports the version mismatch would.
type bareConflictRemote struct {
	*memory.Remote
}

func (r *bareConflictRemote) Update(ctx context.Context, id string, baseVersion int64, fields core.Fields) (core.UpdateResult, error) {
	res, err := r.Remote.Update(ctx, id, baseVersion, fields)
	var conflict *core.ConflictError
	if errors.As(err, &conflict) {
		return res, &core.ConflictError{ID: conflict.ID}
	}
	return res, err
}

func TestEngine_OverwriteRefetchesUnknownBase(t *testing.T) {
	st := store.New("u1", nil, 0)
	inner := memory.New()
	e := syncer.New(st, &bareConflictRemote{Remote: inner}, syncer.Config{Backoff: fastBackoff})
	inner.Seed(core.Note{ID: "N1", Title: "t", Content: "base", OwnerID: "u1", Version: 1})
	st.Load([]core.Note{{ID: "N1", Title: "t", Content: "base", OwnerID: "u1", Version: 1}})
	e.Start(context.Background())

	require.True(t, inner.Mutate("N1", core.Fields{Title: "t", Content: "theirs"}))
	_, err := st.UpsertLocal(core.Note{ID: "N1", Title: "t", Content: "mine"})
	require.NoError(t, err)
	e.Enqueue("N1")
	wait(t, e)

	got, _ := st.Get("N1")
	require.Equal(t, core.StateConflict, got.SyncState)
	_, known := st.LatestRemote("N1")
	require.False(t, known, "this backend reports no latest copy")

	require.NoError(t, e.ResolveOverwrite(context.Background(), "N1"))
	wait(t, e)

	got, _ = st.Get("N1")
	assert.Equal(t, core.StateClean, got.SyncState)
	assert.Equal(t, "mine", got.Content)
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, 2, inner.Calls("update"), "the overwrite must re-base on a fresh fetch, not bounce off a second conflict")
}

func TestEngine_WaitContext(t *testing.T) {
	st, _, e := newEngine(t)

	// Never started, one task queued: Wait can only end via the context.
	n, err := st.UpsertLocal(core.Note{ID: "local-1", Title: "t", Content: "c"})
	require.NoError(t, err)
	e.Enqueue(n.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Wait(ctx), context.DeadlineExceeded)
}
