package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type scriptedReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	done      context.CancelFunc
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		// Script exhausted; stop the run loop.
		r.done()
		return kafka.Message{}, context.Canceled
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	return msg, nil
}

func (r *scriptedReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *scriptedReader) Close() error { return nil }

func (r *scriptedReader) committedOffsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	offsets := make([]int64, 0, len(r.committed))
	for _, msg := range r.committed {
		offsets = append(offsets, msg.Offset)
	}
	return offsets
}

type scriptedHandler struct {
	mu     sync.Mutex
	seen   []Message
	errFor map[string]error
}

func (h *scriptedHandler) Handle(_ context.Context, msg Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, msg)
	if h.errFor != nil {
		if err, ok := h.errFor[msg.EventType]; ok {
			return err
		}
	}
	return nil
}

func validMessage(offset int64, eventType string) kafka.Message {
	return kafka.Message{
		Topic:     Topic,
		Partition: 0,
		Offset:    offset,
		Time:      time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC),
		Value:     []byte(`{"entry_id":"entry-1"}`),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}
}

func runProcessor(t *testing.T, reader *scriptedReader, handler Handler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reader.done = cancel

	proc := NewProcessor(reader, handler, WithProcessorLogger(quietLogger()))
	err := proc.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestProcessorCommitsHandledMessages(t *testing.T) {
	reader := &scriptedReader{queue: []kafka.Message{
		validMessage(1, TypeAssemblyStarted),
		validMessage(2, TypeAssemblyCompleted),
	}}
	handler := &scriptedHandler{}

	runProcessor(t, reader, handler)

	require.Len(t, handler.seen, 2)
	require.Equal(t, TypeAssemblyStarted, handler.seen[0].EventType)
	require.Equal(t, TypeAssemblyCompleted, handler.seen[1].EventType)
	require.Equal(t, []int64{1, 2}, reader.committedOffsets())
}

func TestProcessorSkipsCommitOnHandlerError(t *testing.T) {
	reader := &scriptedReader{queue: []kafka.Message{
		validMessage(1, TypeAssemblyStarted),
		validMessage(2, TypeAssemblyCompleted),
	}}
	handler := &scriptedHandler{errFor: map[string]error{
		TypeAssemblyStarted: errors.New("boom"),
	}}

	runProcessor(t, reader, handler)

	// The failed message's offset is never committed, the next one is.
	require.Equal(t, []int64{2}, reader.committedOffsets())
}

func TestProcessorCommitsMalformedMessages(t *testing.T) {
	noHeader := kafka.Message{Topic: Topic, Offset: 1, Value: []byte(`{}`)}
	badJSON := kafka.Message{
		Topic:  Topic,
		Offset: 2,
		Value:  []byte(`{not json`),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(TypeAssemblyStarted)},
		},
	}
	reader := &scriptedReader{queue: []kafka.Message{noHeader, badJSON}}
	handler := &scriptedHandler{}

	runProcessor(t, reader, handler)

	// Both are committed without reaching the handler.
	require.Empty(t, handler.seen)
	require.Equal(t, []int64{1, 2}, reader.committedOffsets())
}

func TestDecodeMessageCopiesPayload(t *testing.T) {
	msg := validMessage(7, TypeAssemblyStarted)
	decoded, err := decodeMessage(msg)
	require.NoError(t, err)

	msg.Value[0] = 'X'
	require.Equal(t, byte('{'), decoded.Payload[0])
	require.Equal(t, int64(7), decoded.Offset)
	require.Equal(t, Topic, decoded.Topic)
}
