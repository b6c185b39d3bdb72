// Package chatclient maintains a client-side view of one conversation: a
// confirmed transcript plus optimistic entries for sends still in flight.
// Live events reconcile optimistic entries against their stored
// counterparts so a sender never sees its own message twice.
package chatclient

import (
	"sync"

	"github.com/google/uuid"
)

// Entry is one line of the rendered conversation.
type Entry struct {
	// ID is the server-assigned message id, nil while pending.
	ID            uuid.UUID
	SenderID      uuid.UUID
	Text          string
	CorrelationID string
	Pending       bool
}

// LiveMessage is the slice of a delivered message the view needs.
type LiveMessage struct {
	ID            uuid.UUID
	SenderID      uuid.UUID
	Text          string
	CorrelationID string
}

// View is a reconciling conversation transcript. Safe for concurrent use.
type View struct {
	mu      sync.Mutex
	selfID  uuid.UUID
	entries []Entry
	seen    map[uuid.UUID]struct{} // server ids already in the transcript
}

// NewView creates a view for the given local user.
func NewView(selfID uuid.UUID) *View {
	return &View{selfID: selfID, seen: make(map[uuid.UUID]struct{})}
}

// AddPending appends an optimistic entry for a send the server has not yet
// confirmed. The correlation id ties it to the eventual delivery.
func (v *View) AddPending(correlationID, text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries = append(v.entries, Entry{
		SenderID:      v.selfID,
		Text:          text,
		CorrelationID: correlationID,
		Pending:       true,
	})
}

// ApplyLive folds a delivered message into the transcript.
//
// A delivery of the local user's own message first tries to confirm the
// pending entry with the matching correlation id. When the correlation id
// is absent (REST send, older client) it falls back to sweeping every
// pending entry; the swept sends reappear as their own deliveries arrive,
// deduplicated by server id. Deliveries whose server id was already
// applied are dropped.
func (v *View) ApplyLive(m LiveMessage) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, dup := v.seen[m.ID]; dup {
		return
	}
	v.seen[m.ID] = struct{}{}

	if m.SenderID == v.selfID {
		if m.CorrelationID != "" && v.confirm(m, v.matchCorrelation(m.CorrelationID)) {
			return
		}
		v.sweepPending()
	}

	v.entries = append(v.entries, Entry{
		ID:       m.ID,
		SenderID: m.SenderID,
		Text:     m.Text,
	})
}

// Replace swaps the whole transcript for a fresh fetch of the durable store,
// dropping every optimistic entry. Used after reconnects.
func (v *View) Replace(msgs []LiveMessage) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.entries = v.entries[:0]
	v.seen = make(map[uuid.UUID]struct{}, len(msgs))
	for _, m := range msgs {
		v.seen[m.ID] = struct{}{}
		v.entries = append(v.entries, Entry{
			ID:       m.ID,
			SenderID: m.SenderID,
			Text:     m.Text,
		})
	}
}

// Entries returns a snapshot of the transcript in display order.
func (v *View) Entries() []Entry {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Entry(nil), v.entries...)
}

// PendingCount returns how many sends are still unconfirmed.
func (v *View) PendingCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, e := range v.entries {
		if e.Pending {
			n++
		}
	}
	return n
}

// confirm upgrades the pending entry at idx to a confirmed one. Must be
// called with v.mu held.
func (v *View) confirm(m LiveMessage, idx int) bool {
	if idx < 0 {
		return false
	}
	v.entries[idx].ID = m.ID
	v.entries[idx].Text = m.Text
	v.entries[idx].Pending = false
	return true
}

func (v *View) matchCorrelation(correlationID string) int {
	for i, e := range v.entries {
		if e.Pending && e.CorrelationID == correlationID {
			return i
		}
	}
	return -1
}

// sweepPending drops every optimistic entry. Must be called with v.mu held.
func (v *View) sweepPending() {
	kept := v.entries[:0]
	for _, e := range v.entries {
		if !e.Pending {
			kept = append(kept, e)
		}
	}
	v.entries = kept
}
