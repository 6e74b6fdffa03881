// Package stream models a model response as a finite, non-restartable
// sequence of text chunks produced once and fanned out to any number of
// readers, plus a completion future carrying the accumulated text.
package stream

import (
	"context"
	"iter"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Producer generates chunks by calling emit until the response is complete.
// A non-nil return value fails the stream.
type Producer func(ctx context.Context, emit func(chunk string) error) error

// Stream is a live token stream.
//
// Chunks are buffered, so a slow or absent live reader never blocks the
// producer, and the full text is available through Result once the
// producer has returned.
type Stream struct {
	id string

	mu     sync.Mutex
	chunks []string
	done   bool
	err    error
	text   string
	notify chan struct{}

	finished chan struct{}
}

func newStream() *Stream {
	return &Stream{
		id:       uuid.New().String(),
		notify:   make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// New starts produce in its own goroutine and returns the stream it feeds.
// The producer keeps running until it returns; there is no cancellation
// beyond what ctx carries into the producer.
func New(ctx context.Context, produce Producer) *Stream {
	s := newStream()
	go func() {
		err := produce(ctx, s.emit)
		s.finish(err)
	}()
	return s
}

// FromText returns an already completed stream holding text as its single
// chunk.
func FromText(text string) *Stream {
	s := newStream()
	_ = s.emit(text)
	s.finish(nil)
	return s
}

// Failed returns an already failed stream.
func Failed(err error) *Stream {
	s := newStream()
	s.finish(err)
	return s
}

// ID identifies the stream in logs.
func (s *Stream) ID() string {
	return s.id
}

func (s *Stream) emit(chunk string) error {
	if chunk == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.chunks = append(s.chunks, chunk)
	s.broadcastLocked()
	return nil
}

func (s *Stream) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	s.err = err
	if err == nil {
		s.text = strings.Join(s.chunks, "")
	}
	s.broadcastLocked()
	close(s.finished)
}

func (s *Stream) broadcastLocked() {
	close(s.notify)
	s.notify = make(chan struct{})
}

// Chunks yields every chunk from the beginning of the stream, waiting for
// new ones until the producer finishes. If the producer failed, the final
// iteration yields ("", err). Cancelling ctx stops the reader, not the
// producer.
func (s *Stream) Chunks(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for i := 0; ; {
			s.mu.Lock()
			if i < len(s.chunks) {
				chunk := s.chunks[i]
				s.mu.Unlock()
				i++
				if !yield(chunk, nil) {
					return
				}
				continue
			}
			if s.done {
				err := s.err
				s.mu.Unlock()
				if err != nil {
					yield("", err)
				}
				return
			}
			wait := s.notify
			s.mu.Unlock()

			select {
			case <-wait:
			case <-ctx.Done():
				yield("", ctx.Err())
				return
			}
		}
	}
}

// Done is closed once the producer has returned.
func (s *Stream) Done() <-chan struct{} {
	return s.finished
}

// Result waits for completion and returns the concatenation of all chunks.
// A failed stream returns its error and no partial text.
func (s *Stream) Result(ctx context.Context) (string, error) {
	select {
	case <-s.finished:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return s.text, nil
}

// Err returns the producer's error, or nil while running or on success.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
