package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// captureSink records published entries and can be told to fail.
type captureSink struct {
	mu      sync.Mutex
	entries []Entry
	fail    bool
}

func (c *captureSink) Publish(_ context.Context, entry Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("sink unreachable")
	}
	c.entries = append(c.entries, entry)
	return nil
}

func (c *captureSink) published() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Entry{}, c.entries...)
}

type OutboxSuite struct {
	suite.Suite
}

func TestOutboxSuite(t *testing.T) {
	suite.Run(t, new(OutboxSuite))
}

func (s *OutboxSuite) TestDrainPreservesEmissionOrder() {
	o := NewOutbox(10, nil)
	o.Push(Entry{EventType: "a"})
	o.Push(Entry{EventType: "b"})
	o.Push(Entry{EventType: "c"})

	batch := o.Drain(2)
	s.Require().Len(batch, 2)
	s.Equal("a", batch[0].EventType)
	s.Equal("b", batch[1].EventType)

	batch = o.Drain(10)
	s.Require().Len(batch, 1)
	s.Equal("c", batch[0].EventType)
	s.Nil(o.Drain(10))
}

func (s *OutboxSuite) TestOverflowDropsOldest() {
	o := NewOutbox(3, nil)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		o.Push(Entry{EventType: name})
	}

	s.Equal(3, o.Len())
	batch := o.Drain(10)
	s.Require().Len(batch, 3)
	s.Equal("c", batch[0].EventType)
	s.Equal("d", batch[1].EventType)
	s.Equal("e", batch[2].EventType)
}

func (s *OutboxSuite) TestWorkerPublishesInOrder() {
	o := NewOutbox(100, nil)
	sink := &captureSink{}
	w := NewWorker(o, sink,
		WithPollInterval(5*time.Millisecond),
		WithWorkerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	w.Start()

	o.Push(Entry{EventType: "first"})
	o.Push(Entry{EventType: "second"})

	s.Eventually(func() bool {
		return len(sink.published()) == 2
	}, time.Second, 5*time.Millisecond)
	w.Close()

	got := sink.published()
	s.Equal("first", got[0].EventType)
	s.Equal("second", got[1].EventType)
}

func (s *OutboxSuite) TestSinkFailureDropsEntryWithoutBlocking() {
	o := NewOutbox(100, nil)
	sink := &captureSink{fail: true}
	w := NewWorker(o, sink,
		WithPollInterval(5*time.Millisecond),
		WithWorkerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	w.Start()

	o.Push(Entry{EventType: "doomed"})

	// The failed entry is dropped, not requeued.
	s.Eventually(func() bool {
		return o.Len() == 0
	}, time.Second, 5*time.Millisecond)
	w.Close()
	s.Empty(sink.published())
}

func (s *OutboxSuite) TestCloseDrainsPending() {
	o := NewOutbox(100, nil)
	sink := &captureSink{}
	// Long poll interval so entries are still queued when Close runs.
	w := NewWorker(o, sink, WithPollInterval(time.Hour))
	w.Start()

	o.Push(Entry{EventType: "pending-1"})
	o.Push(Entry{EventType: "pending-2"})
	w.Close()

	s.Len(sink.published(), 2)
}
