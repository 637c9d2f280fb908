package emit

import (
	"context"
	"fmt"
)

// DefaultChunkSize is the number of characters per emitted chunk.
const DefaultChunkSize = 32768

// Sink receives chunks in ascending offset order followed by exactly one
// completion call. The transport behind it must be ordered and lossless;
// this package adds no sequence numbers of its own.
type Sink interface {
	SendChunk(ctx context.Context, chunk string) error
	Complete(ctx context.Context) error
}

// SinkError reports a sink failure and the index of the chunk that hit it.
// A failure during the completion call carries the total chunk count as Chunk.
type SinkError struct {
	Chunk int
	Err   error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink failed at chunk %d: %v", e.Chunk, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// Emit splits payload into chunkSize pieces and sends them through sink in
// order, then signals completion exactly once. An empty payload sends no
// chunks but still completes. On a sink failure no further chunks are sent
// and completion is never signalled. Returns the number of chunks delivered.
func Emit(ctx context.Context, payload string, chunkSize int, sink Sink) (int, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	sent := 0
	for offset := 0; offset < len(payload); offset += chunkSize {
		end := offset + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		if err := sink.SendChunk(ctx, payload[offset:end]); err != nil {
			return sent, &SinkError{Chunk: sent, Err: err}
		}
		sent++
	}

	if err := sink.Complete(ctx); err != nil {
		return sent, &SinkError{Chunk: sent, Err: err}
	}
	return sent, nil
}
