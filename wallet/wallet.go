// package wallet implements the wallet microservice.
//
// This microservice implements a RESTful API for a session wallet on an ethereum-type chain: session lifecycle
// (generate, import, restore, end), balance, send flow with pre-flight validation, transfer history and the address
// book.
package wallet

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/miniwallet/miniwallet/lib/chain"
	"github.com/miniwallet/miniwallet/lib/history"
	"github.com/miniwallet/miniwallet/lib/msg"
	"github.com/miniwallet/miniwallet/lib/store"
	"github.com/miniwallet/miniwallet/lib/store/db"
)

// Wallet contains the data necessary to deliver the service
type Wallet struct {
	dbtype   string
	db       store.DB        // durable store (address book)
	chain    chain.Client    // blockchain client
	hist     *history.Client // block explorer query client
	mb       msg.MsgBroker   // transfer event broker, may be nil
	sessions *SessionManager
	send     *SendFlow
	book     *AddressBook
	s        *http.Server  // http server
	ss       *http.Server  // https server
	sc       chan struct{} // http server channel used for graceful shutdowns
}

// New returns a pointer to a new Wallet service. keys is the session-scoped store holding the active credential;
// refresh is the periodic balance refresh interval.
func New(dbtype string, dbConn store.DB, mb msg.MsgBroker, c chain.Client, hist *history.Client,
	keys store.SessionStore, refresh time.Duration) *Wallet {
	sessions := NewSessionManager(c, keys, refresh)
	return &Wallet{
		dbtype:   dbtype,
		db:       dbConn,
		mb:       mb,
		chain:    c,
		hist:     hist,
		sessions: sessions,
		send:     NewSendFlow(c, sessions, mb),
		book:     NewAddressBook(dbConn),
	}
}

// Stop shuts down the http servers implementing the RESTful API, ends the active session and closes gracefully the
// connections to the message broker, the chain client and the database.
func (w *Wallet) Stop() {
	var err error
	// shutdown http server
	if w.s != nil {
		if err = w.s.Shutdown(context.Background()); err != nil {
			log.Printf("Error in http server shutdown:%e", err)
		}
	}
	if w.ss != nil {
		if err = w.ss.Shutdown(context.Background()); err != nil {
			log.Printf("Error in https server shutdown:%e", err)
		}
	}
	if w.sc != nil {
		close(w.sc) // close server channel to indicate shutdowns have finished
	}
	// end the active session, cancelling the refresh timer
	if err = w.sessions.End(); err != nil {
		log.Printf("Error ending session:%e", err)
	}
	// close message broker
	if w.mb != nil {
		if err = w.mb.Close(); err != nil {
			log.Printf("Error closing message broker:%e", err)
		}
	}
	// close chain client
	w.chain.Close()
	// close database
	if w.db != nil {
		err = db.Close(w.dbtype, w.db)
		log.Printf("Disconnecting %v database, err:%e\n", w.dbtype, err)
	}
}
