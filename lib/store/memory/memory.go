// Package memory implements the store interfaces in process memory. It backs the session-scoped credential slot and
// serves as the durable store when no database is configured (data then lives only as long as the process).
package memory

import (
	"strings"
	"sync"

	"github.com/miniwallet/miniwallet/lib/store"
)

// Memory implements both store.SessionStore and store.DB.
type Memory struct {
	mu       sync.Mutex
	key      string
	hasKey   bool
	contacts []store.Contact
}

// New returns an empty in-memory store.
func New() *Memory {
	return &Memory{}
}

// PutKey saves the raw session credential, overwriting any previous one.
func (m *Memory) PutKey(raw string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.key, m.hasKey = raw, true
	return nil
}

// GetKey returns the stored session credential or store.ErrNoKey.
func (m *Memory) GetKey() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasKey {
		return "", store.ErrNoKey
	}
	return m.key, nil
}

// DeleteKey clears the session credential slot.
func (m *Memory) DeleteKey() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.key, m.hasKey = "", false
	return nil
}

// Contacts returns a copy of the stored address book, in insertion order.
func (m *Memory) Contacts() ([]store.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Contact, len(m.contacts))
	copy(out, m.contacts)
	return out, nil
}

// AddContact appends a contact to the book.
func (m *Memory) AddContact(c store.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts = append(m.contacts, c)
	return nil
}

// RemoveContact deletes the contact with the given address (case-insensitive).
func (m *Memory) RemoveContact(address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.contacts {
		if strings.EqualFold(c.Addr, address) {
			m.contacts = append(m.contacts[:i], m.contacts[i+1:]...)
			return nil
		}
	}
	return store.ErrContactNotFound
}
