package core

import "context"

// Fragment is one incremental piece of transcribed text delivered by the
// transcription source during an active recording.
type Fragment struct {
	Text string
}

// TranscriptionSource is the acoustic-to-text service, consumed as a black
// box producing text increments in temporal order.
//
// Stream opens the fragment stream. The channel is closed when the source
// ends or the context is cancelled. The capture state machine is the sole
// subscriber at any time.
type TranscriptionSource interface {
	Stream(ctx context.Context) (<-chan Fragment, error)
}
