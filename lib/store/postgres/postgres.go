// Package postgres implements the durable store interface for PostgreSQL.
package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" //nolint:gci // load the postgres driver that is used by the system

	"github.com/miniwallet/miniwallet/lib/store"
)

type Postgres struct {
	db *sql.DB
}

// New returns a postgres client connection to the specified database in 'connection' and ensures the contacts table
// exists.
func New(connection string) (*Postgres, error) {
	db, err := sql.Open("postgres", connection)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to DB in %s: %w", connection, err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS contacts (
		id      TEXT PRIMARY KEY,
		name    TEXT NOT NULL,
		address TEXT NOT NULL
	)`)
	if err != nil {
		return nil, fmt.Errorf("cannot create contacts table: %w", err)
	}

	return &Postgres{db: db}, nil
}

// ClosePostgres will close any database connection. Must be called at termination time.
func (p *Postgres) ClosePostgres() error {
	return p.db.Close()
}

// Contacts returns all stored contacts in insertion order.
func (p *Postgres) Contacts() ([]store.Contact, error) {
	rows, err := p.db.Query("SELECT id, name, address FROM contacts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("could not read contacts from db: %w", err)
	}
	defer rows.Close()

	contacts := []store.Contact{}
	for rows.Next() {
		var c store.Contact
		if err = rows.Scan(&c.ID, &c.Name, &c.Addr); err != nil {
			return nil, fmt.Errorf("could not scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}

	return contacts, rows.Err()
}

// AddContact saves a contact.
func (p *Postgres) AddContact(c store.Contact) error {
	_, err := p.db.Exec("INSERT INTO contacts (id, name, address) VALUES ($1, $2, $3)", c.ID, c.Name, c.Addr)
	if err != nil {
		return fmt.Errorf("could not insert contact in db: %w", err)
	}

	return nil
}

// RemoveContact deletes the contact with the given address (case-insensitive).
func (p *Postgres) RemoveContact(address string) error {
	res, err := p.db.Exec("DELETE FROM contacts WHERE lower(address) = lower($1)", address)
	if err != nil {
		return fmt.Errorf("could not delete contact from db: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return store.ErrContactNotFound
	}

	return nil
}
