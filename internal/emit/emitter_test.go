package emit

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type recordingSink struct {
	chunks      []string
	completions int
	failOnChunk int // index of the chunk to fail on; -1 disables
	failErr     error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{failOnChunk: -1}
}

func (s *recordingSink) SendChunk(ctx context.Context, chunk string) error {
	if s.failOnChunk >= 0 && len(s.chunks) == s.failOnChunk {
		return s.failErr
	}
	s.chunks = append(s.chunks, chunk)
	return nil
}

func (s *recordingSink) Complete(ctx context.Context) error {
	s.completions++
	return nil
}

func payloadOfLength(length int) string {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(byte('a' + i%26))
	}
	return b.String()
}

func TestEmitRoundTripsAcrossBoundaryLengths(t *testing.T) {
	const chunkSize = 8
	lengths := []int{0, 1, chunkSize - 1, chunkSize, chunkSize + 1, 10*chunkSize + 7}

	for _, length := range lengths {
		payload := payloadOfLength(length)
		sink := newRecordingSink()

		sent, err := Emit(context.Background(), payload, chunkSize, sink)
		if err != nil {
			t.Fatalf("length %d: expected success, got error: %v", length, err)
		}

		wantChunks := (length + chunkSize - 1) / chunkSize
		if sent != wantChunks || len(sink.chunks) != wantChunks {
			t.Fatalf("length %d: expected %d chunks, got sent=%d recorded=%d", length, wantChunks, sent, len(sink.chunks))
		}
		if joined := strings.Join(sink.chunks, ""); joined != payload {
			t.Fatalf("length %d: concatenated chunks do not reconstruct the payload", length)
		}
		if sink.completions != 1 {
			t.Fatalf("length %d: expected exactly one completion, got %d", length, sink.completions)
		}
	}
}

func TestEmitEmptyPayloadStillCompletes(t *testing.T) {
	sink := newRecordingSink()

	sent, err := Emit(context.Background(), "", 32, sink)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if sent != 0 || len(sink.chunks) != 0 {
		t.Fatalf("expected zero chunks, got %d", len(sink.chunks))
	}
	if sink.completions != 1 {
		t.Fatalf("expected exactly one completion, got %d", sink.completions)
	}
}

func TestEmitAllButFinalChunkAreFullSize(t *testing.T) {
	const chunkSize = 16
	payload := payloadOfLength(3*chunkSize + 5)
	sink := newRecordingSink()

	if _, err := Emit(context.Background(), payload, chunkSize, sink); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	for i, chunk := range sink.chunks[:len(sink.chunks)-1] {
		if len(chunk) != chunkSize {
			t.Fatalf("chunk %d has length %d, expected %d", i, len(chunk), chunkSize)
		}
	}
	if last := sink.chunks[len(sink.chunks)-1]; len(last) != 5 {
		t.Fatalf("final chunk has length %d, expected 5", len(last))
	}
}

func TestEmitAbortsOnSinkFailure(t *testing.T) {
	const chunkSize = 4
	payload := payloadOfLength(5 * chunkSize) // 5 chunks
	sink := newRecordingSink()
	sink.failOnChunk = 2
	sink.failErr = errors.New("transport refused")

	sent, err := Emit(context.Background(), payload, chunkSize, sink)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var sinkErr *SinkError
	if !errors.As(err, &sinkErr) {
		t.Fatalf("expected SinkError, got %T", err)
	}
	if sinkErr.Chunk != 2 {
		t.Fatalf("expected failure at chunk 2, got %d", sinkErr.Chunk)
	}
	if !errors.Is(err, sink.failErr) {
		t.Fatal("expected the sink's error to be wrapped")
	}
	if sent != 2 || len(sink.chunks) != 2 {
		t.Fatalf("expected exactly 2 delivered chunks before abort, got %d", len(sink.chunks))
	}
	if sink.completions != 0 {
		t.Fatalf("completion must not be signalled after a sink failure, got %d", sink.completions)
	}
}

func TestEmitIsDeterministic(t *testing.T) {
	const chunkSize = 6
	payload := payloadOfLength(4*chunkSize + 3)

	first := newRecordingSink()
	second := newRecordingSink()
	if _, err := Emit(context.Background(), payload, chunkSize, first); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if _, err := Emit(context.Background(), payload, chunkSize, second); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if len(first.chunks) != len(second.chunks) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first.chunks), len(second.chunks))
	}
	for i := range first.chunks {
		if first.chunks[i] != second.chunks[i] {
			t.Fatalf("chunk %d differs between identical runs", i)
		}
	}
}

func TestEmitDefaultsChunkSize(t *testing.T) {
	payload := payloadOfLength(DefaultChunkSize + 1)
	sink := newRecordingSink()

	sent, err := Emit(context.Background(), payload, 0, sink)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if sent != 2 {
		t.Fatalf("expected 2 chunks under default size, got %d", sent)
	}
}
