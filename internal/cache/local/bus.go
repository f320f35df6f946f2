package local

import (
	"context"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/pascal/internal/domain"
)

const (
	defaultStreamMaxLen = 1000
	// streamTTL matches the expiry the Redis bus sets on each stream.
	streamTTL = 24 * time.Hour
)

// Bus implements domain.SignalBus in memory. Subscriptions accept the same
// glob patterns as Redis PSUBSCRIBE (matched with path.Match). Slow
// subscribers drop messages rather than block publishers.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]subscription
	nextSub uint64

	streams map[string]*stream
	maxLen  int
	now     func() time.Time
}

type subscription struct {
	pattern string
	ch      chan []byte
}

type stream struct {
	seq        uint64
	entries    []domain.StreamMessage
	lastAppend time.Time
}

// NewBus creates an empty Bus keeping at most maxLen entries per stream.
func NewBus(maxLen int) *Bus {
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &Bus{
		subs:    make(map[uint64]subscription),
		streams: make(map[string]*stream),
		maxLen:  maxLen,
		now:     time.Now,
	}
}

// Publish delivers payload to every subscription whose pattern matches
// channel.
func (b *Bus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		if ok, _ := path.Match(s.pattern, channel); !ok {
			continue
		}
		select {
		case s.ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe registers pattern until ctx is done; the returned channel is
// closed at that point.
func (b *Bus) Subscribe(ctx context.Context, pattern string) (<-chan []byte, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}

	ch := make(chan []byte, 128)
	b.mu.Lock()
	b.nextSub++
	id := b.nextSub
	b.subs[id] = subscription{pattern: pattern, ch: ch}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}

// StreamAppend appends payload to the named stream, trimming the oldest
// entries beyond the configured length. Entry IDs are "<seq>-0" so they
// order the same way Redis stream IDs do.
func (b *Bus) StreamAppend(_ context.Context, name string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.streams[name]
	if !ok {
		s = &stream{}
		b.streams[name] = s
	}
	s.seq++
	s.lastAppend = b.now()
	s.entries = append(s.entries, domain.StreamMessage{
		ID:      strconv.FormatUint(s.seq, 10) + "-0",
		Payload: append([]byte(nil), payload...),
	})
	if over := len(s.entries) - b.maxLen; over > 0 {
		s.entries = append(s.entries[:0:0], s.entries[over:]...)
	}
	return nil
}

// Cleanup drops streams with no append within the stream TTL. The app calls
// it periodically since every creation run opens its own stream.
func (b *Bus) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-streamTTL)
	for name, s := range b.streams {
		if s.lastAppend.Before(cutoff) {
			delete(b.streams, name)
		}
	}
}

// StreamRead returns up to count entries after lastID ("" or "0" reads from
// the start).
func (b *Bus) StreamRead(_ context.Context, name string, lastID string, count int) ([]domain.StreamMessage, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, ok := b.streams[name]
	if !ok {
		return nil, nil
	}

	after := streamSeq(lastID)
	var out []domain.StreamMessage
	for _, e := range s.entries {
		if streamSeq(e.ID) <= after {
			continue
		}
		out = append(out, e)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}

// streamSeq parses the sequence part of an entry ID; anything unparsable
// reads as zero.
func streamSeq(id string) uint64 {
	for i := 0; i < len(id); i++ {
		if id[i] == '-' {
			id = id[:i]
			break
		}
	}
	n, _ := strconv.ParseUint(id, 10, 64)
	return n
}

var _ domain.SignalBus = (*Bus)(nil)
