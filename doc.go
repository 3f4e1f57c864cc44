// Package speaknote is the Composition Root for the SpeakNote engine.
//
// It connects the core business logic (capture state machine, note store,
// sync engine) with the infrastructure adapters (remote store backends)
// using the Hexagonal Architecture pattern.
//
// Philosophy:
//
// SpeakNote is a local-first note engine. Every mutation succeeds against the
// local cache immediately; a background sync engine reconciles it with the
// authoritative remote store, retrying transient failures and surfacing
// version conflicts for explicit resolution. The UI layer on top never waits
// for the network.
//
// Features:
//
//   - **Capture Sessions**: A strict state machine turns a stream of
//     transcription fragments into a committed note (Idle → Recording →
//     Reviewing → Committed/Discarded).
//   - **Optimistic Store**: Notes are cached per owner with explicit sync
//     states; search and listing are always served locally.
//   - **Sync Engine**: Per-note ordered reconciliation with coalescing,
//     exponential backoff, and optimistic-concurrency conflict handling.
//   - **Pluggable Remotes**: Filesystem (Markdown + frontmatter), SQLite,
//     and in-memory adapters ship in-tree; any backend implementing
//     core.RemoteStore plugs in via WithRemote.
//
// Usage:
//
//	svc, err := speaknote.New("./notes",
//		&core.StaticIdentity{User: &core.Identity{ID: "u1"}},
//		source,
//		speaknote.WithAutoInit(true),
//		speaknote.WithLogger(logger),
//	)
//	if err != nil { ... }
//	defer svc.Close()
//
//	if err := svc.Start(ctx); err != nil { ... }
//
//	session, _ := svc.StartCapture(ctx)
//	// ... fragments stream in ...
//	session.Stop()
//	id, _ := session.Commit("Shopping")
package speaknote
