// Package store defines the interfaces for the persistence adapters of the wallet microservice. Two lifetimes exist:
// session-scoped data (the active credential, gone when the process ends) and durable data (the address book).
package store

import (
	"errors"
)

// SessionStore holds the raw session credential. Implementations are expected to be session-scoped: nothing they
// hold survives a restart.
type SessionStore interface {
	PutKey(raw string) error
	GetKey() (string, error)
	DeleteKey() error
}

// DB defines required methods for durable wallet data.
type DB interface {
	Contacts() ([]Contact, error)
	AddContact(Contact) error
	RemoveContact(address string) error
}

// Errors returned
var (
	ErrNoKey           = errors.New("no session key in store")
	ErrContactNotFound = errors.New("contact was not found in store")
)
