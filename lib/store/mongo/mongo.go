// Package mongo implements the durable store interface for MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/miniwallet/miniwallet/lib/store"
)

// Mongo implements a connection to a MongoDB database.
type Mongo struct {
	c *mgo.Client
}

// mongoContact implements a stored contact in MongoDB.
type mongoContact struct {
	ID   string `json:"id" bson:"_id"`
	Name string `json:"name" bson:"name"`
	Addr string `json:"address" bson:"address"`
}

// contact converts a mongoContact to store.Contact type.
func (c mongoContact) contact() store.Contact {
	return store.Contact{ID: c.ID, Name: c.Name, Addr: c.Addr}
}

// New returns a Mongo client connection to the specified MongoDB database uri.
func New(uri string) (*Mongo, error) {
	// get a client
	c, err := mgo.NewClient(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongo DB in %s: %w", uri, err)
	}
	// connect client
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd // 5 seconds timeout
	defer cancel()

	err = c.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("error connecting to mongo DB: %w", err)
	}

	return &Mongo{c: c}, nil
}

// CloseMongo will close a database connection. Must be called at termination time.
func (m *Mongo) CloseMongo() error {
	return m.c.Disconnect(context.Background())
}

func (m *Mongo) col() *mgo.Collection {
	return m.c.Database("wallet").Collection("contacts")
}

// Contacts returns all stored contacts.
func (m *Mongo) Contacts() ([]store.Contact, error) {
	docs, err := m.col().Find(context.Background(), bson.M{})
	if err != nil {
		return nil, fmt.Errorf("could not read contacts from db: %w", err)
	}

	contacts := []store.Contact{}

	for docs.Next(context.Background()) {
		var c mongoContact
		if err = bson.Unmarshal(docs.Current, &c); err == nil {
			contacts = append(contacts, c.contact())
		}
	}

	return contacts, nil
}

// AddContact saves a contact. The address is stored as given; uniqueness is the caller's invariant.
func (m *Mongo) AddContact(c store.Contact) error {
	_, err := m.col().InsertOne(context.Background(), bson.M{"_id": c.ID, "name": c.Name, "address": c.Addr})
	if err != nil {
		return fmt.Errorf("could not insert contact in db: %w", err)
	}

	return nil
}

// RemoveContact deletes the contact with the given address from the database.
func (m *Mongo) RemoveContact(address string) error {
	filter := bson.M{"address": bson.M{"$regex": "^" + strings.ToLower(address) + "$", "$options": "i"}}

	res, err := m.col().DeleteOne(context.Background(), filter)
	if err == nil && res.DeletedCount != 1 {
		err = store.ErrContactNotFound
	}
	if err != nil && !errors.Is(err, store.ErrContactNotFound) {
		err = fmt.Errorf("could not delete contact from db: %w", err)
	}

	return err
}
