package ops

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/wardrobe/internal/outfit"
)

// Pending is the latest suggestion for one owner.
type Pending struct {
	Ticket     string            `json:"ticket"`
	Suggestion outfit.Suggestion `json:"suggestion"`
	CreatedAt  int64             `json:"created_at"`
}

// Board tracks in-flight extractions and the pending suggestion per owner.
// Every extraction takes a ticket when it starts; when several overlap for
// the same owner only the last issued ticket may post its result.
type Board struct {
	mu      sync.Mutex
	entropy io.Reader
	issued  map[string]ulid.ULID
	pending map[string]Pending
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{
		entropy: ulid.Monotonic(rand.Reader, 0),
		issued:  make(map[string]ulid.ULID),
		pending: make(map[string]Pending),
	}
}

// Issue returns a new ticket for owner and makes it the latest.
func (b *Board) Issue(owner outfit.Owner) ulid.ULID {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := ulid.MustNew(ulid.Timestamp(time.Now()), b.entropy)
	b.issued[owner.String()] = t
	return t
}

// Resolve posts the result of ticket t. It reports false, and discards s,
// when a later ticket was issued for the owner. A nil suggestion clears the
// pending entry.
func (b *Board) Resolve(owner outfit.Owner, t ulid.ULID, s outfit.Suggestion) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := owner.String()
	if latest, ok := b.issued[key]; !ok || latest.Compare(t) != 0 {
		return false
	}
	delete(b.issued, key)

	if s == nil {
		delete(b.pending, key)
		return true
	}
	b.pending[key] = Pending{Ticket: t.String(), Suggestion: s, CreatedAt: time.Now().Unix()}
	return true
}

// Get returns a copy of the pending suggestion for owner.
func (b *Board) Get(owner outfit.Owner) (Pending, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pending[owner.String()]
	if !ok {
		return Pending{}, false
	}
	cp := make(outfit.Suggestion, len(p.Suggestion))
	for k, v := range p.Suggestion {
		cp[k] = v
	}
	p.Suggestion = cp
	return p, true
}

// Clear drops the pending suggestion for owner.
func (b *Board) Clear(owner outfit.Owner) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, owner.String())
}

// ClearTicket drops the pending suggestion for owner only while it is still
// the one posted by ticket, so a newer result is kept. It reports whether
// anything was removed.
func (b *Board) ClearTicket(owner outfit.Owner, ticket string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := owner.String()
	if p, ok := b.pending[key]; !ok || p.Ticket != ticket {
		return false
	}
	delete(b.pending, key)
	return true
}

// DropField removes a key from every pending suggestion.
func (b *Board) DropField(f outfit.Field) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, p := range b.pending {
		delete(p.Suggestion, f)
		b.pending[key] = p
	}
}

// Reset forgets every pending suggestion. Extractions still in flight keep
// their tickets and may post afterwards.
func (b *Board) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = make(map[string]Pending)
}
