package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	mu      sync.Mutex
	msgs    []kafkago.Message
	closed  bool
	release chan struct{}
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	if w.release != nil {
		<-w.release
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestProducerFlushesOnClose(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, TopicNotifications, 8)
	p.Start()

	for i := 0; i < 5; i++ {
		if !p.Publish([]byte("k"), []byte("v")) {
			t.Fatalf("publish %d was dropped", i)
		}
	}
	p.Close()
	p.WaitClosed()

	if len(w.msgs) != 5 {
		t.Errorf("expected 5 messages written, got %d", len(w.msgs))
	}
	if !w.closed {
		t.Error("expected writer to be closed")
	}
}

func TestProducerDropsWhenFull(t *testing.T) {
	w := &fakeWriter{release: make(chan struct{})}
	p := newProducer(w, TopicNotifications, 1)
	// Not started: nothing drains the inbox.

	if !p.Publish(nil, []byte("first")) {
		t.Fatal("expected first publish to be queued")
	}
	if p.Publish(nil, []byte("second")) {
		t.Error("expected second publish to be dropped")
	}
}

func TestProducerPublishEnvelope(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, TopicOfferSweep, 4)
	p.Start()

	env, _ := NewEnvelope("SweepRequested", "item-7", map[string]string{"itemId": "item-7"})
	p.PublishEnvelope(env)
	p.Close()
	p.WaitClosed()

	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "item-7" {
		t.Errorf("expected key item-7, got %q", w.msgs[0].Key)
	}
	got, err := DecodeEnvelope(w.msgs[0].Value)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if got.EventID != env.EventID {
		t.Errorf("expected event id %q, got %q", env.EventID, got.EventID)
	}
}

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafkago.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		m := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafkago.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafkago.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func TestConsumerCommitsOnlyHandledMessages(t *testing.T) {
	r := &fakeReader{pending: []kafkago.Message{
		{Offset: 1, Value: []byte("ok")},
		{Offset: 2, Value: []byte("fail")},
		{Offset: 3, Value: []byte("ok")},
	}}
	c := newConsumer(r, TopicOfferSweep, 2)

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	seen := 0
	handler := func(ctx context.Context, m kafkago.Message) error {
		mu.Lock()
		seen++
		done := seen == 3
		mu.Unlock()
		if done {
			defer cancel()
		}
		if string(m.Value) == "fail" {
			return errors.New("boom")
		}
		return nil
	}

	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx, handler) }()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		t.Error("expected reader to be closed")
	}
	for _, off := range r.committed {
		if off == 2 {
			t.Error("failed message must not be committed")
		}
	}
}
