package wallet

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/miniwallet/miniwallet/lib/store"
)

// ErrConfirmDelete is returned when a contact deletion is attempted without the explicit confirmation step.
var ErrConfirmDelete = errors.New("contact deletion requires confirmation")

// AddressBook is thin CRUD over the durable store. Mutation is UI driven and single threaded; the store handles its
// own locking.
type AddressBook struct {
	db store.DB
}

// NewAddressBook returns an address book over db.
func NewAddressBook(db store.DB) *AddressBook {
	return &AddressBook{db: db}
}

// Contacts returns the stored contacts in insertion order.
func (b *AddressBook) Contacts() ([]store.Contact, error) {
	return b.db.Contacts()
}

// Add validates and stores a new contact. The name must be non-empty and the address well-formed; addresses are
// unique within the book, compared case-insensitively. The address is stored in checksummed form.
func (b *AddressBook) Add(name, address string) (store.Contact, error) {
	name = strings.TrimSpace(name)
	address = strings.TrimSpace(address)

	if name == "" {
		return store.Contact{}, &ValidationError{Field: "name", Msg: "name cannot be empty"}
	}
	if !common.IsHexAddress(address) {
		return store.Contact{}, &ValidationError{Field: "address", Msg: "not a valid address"}
	}

	existing, err := b.db.Contacts()
	if err != nil {
		return store.Contact{}, err
	}
	for _, c := range existing {
		if strings.EqualFold(c.Addr, address) {
			return store.Contact{}, &ValidationError{Field: "address", Msg: "address is already in the book"}
		}
	}

	c := store.Contact{ID: uuid.NewString(), Name: name, Addr: common.HexToAddress(address).Hex()}
	if err = b.db.AddContact(c); err != nil {
		return store.Contact{}, err
	}
	return c, nil
}

// Remove deletes the contact with the given address. The confirm flag is the caller's explicit confirmation step:
// without it nothing is mutated.
func (b *AddressBook) Remove(address string, confirm bool) error {
	if !confirm {
		return ErrConfirmDelete
	}
	return b.db.RemoveContact(address)
}
