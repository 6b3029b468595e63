// Package scratchpad keeps the artifacts a conversation produced so later
// turns can reuse them without a new upload.
package scratchpad

import (
	"sync"
	"time"

	"synapse/pkg/tools"
)

// Artifact kinds
const (
	KindExtractedText  = "extracted_text"
	KindExtractedTable = "extracted_table"
	KindPendingEmail   = "pending_email"
)

// PendingEmail is a drafted email awaiting user confirmation.
type PendingEmail struct {
	ID string
	tools.Email
	CreatedAt time.Time
}

// Scratchpad holds at most one value per artifact kind; a write replaces
// the previous value.
type Scratchpad struct {
	mu    sync.RWMutex
	text  *string
	table *tools.Table
	email *PendingEmail
}

func (s *Scratchpad) SetText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = &text
}

func (s *Scratchpad) Text() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.text == nil {
		return "", false
	}
	return *s.text, true
}

func (s *Scratchpad) SetTable(t *tools.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = t
}

// Table returns the cached table. Callers must not mutate it.
func (s *Scratchpad) Table() (*tools.Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table, s.table != nil
}

func (s *Scratchpad) SetPendingEmail(e PendingEmail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	s.email = &e
}

func (s *Scratchpad) PendingEmail() (PendingEmail, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.email == nil {
		return PendingEmail{}, false
	}
	return *s.email, true
}

// TakePendingEmail returns and clears the pending email if its ID matches
// (an empty id matches any).
func (s *Scratchpad) TakePendingEmail(id string) (PendingEmail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.email == nil || (id != "" && s.email.ID != id) {
		return PendingEmail{}, false
	}
	e := *s.email
	s.email = nil
	return e, true
}

// Kinds lists the artifact kinds currently held.
func (s *Scratchpad) Kinds() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var kinds []string
	if s.text != nil {
		kinds = append(kinds, KindExtractedText)
	}
	if s.table != nil {
		kinds = append(kinds, KindExtractedTable)
	}
	if s.email != nil {
		kinds = append(kinds, KindPendingEmail)
	}
	return kinds
}
