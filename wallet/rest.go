package wallet

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

const (
	readTimeout  = 15
	writeTimeout = 150 // a submission blocks until the transfer confirms
)

// router builds the API definition.
func (w *Wallet) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", w.homeHandler)
	r.HandleFunc("/session", w.newSessionHandler).Methods("POST")            // generate a fresh credential
	r.HandleFunc("/session", w.sessionHandler).Methods("GET")                // get session address and balance
	r.HandleFunc("/session", w.endSessionHandler).Methods("DELETE")          // end the session
	r.HandleFunc("/session/import", w.importSessionHandler).Methods("POST")  // import a raw private key
	r.HandleFunc("/session/restore", w.restoreSessionHandler).Methods("POST") // re-activate a persisted key
	r.HandleFunc("/session/qr", w.qrHandler).Methods("GET")                  // QR code of the session address
	r.HandleFunc("/history", w.historyHandler).Methods("GET")                // recent transfers of the session address
	r.HandleFunc("/resolve", w.resolveHandler).Methods("POST")               // resolve a recipient name or address
	r.HandleFunc("/estimate", w.estimateHandler).Methods("POST")             // estimate the network fee of a transfer
	r.HandleFunc("/send", w.sendHandler).Methods("POST")                     // submit a transfer
	r.HandleFunc("/tx/{hash}", w.receiptHandler).Methods("GET")              // confirmation status of a transfer
	r.HandleFunc("/contacts", w.contactsHandler).Methods("GET")              // list address book contacts
	r.HandleFunc("/contacts", w.addContactHandler).Methods("POST")           // add a contact
	r.HandleFunc("/contacts/{address}", w.delContactHandler).Methods("DELETE") // delete a contact (needs ?confirm=true)
	return r
}

// Init sets up and starts the http/https server to service the RESTful API for the wallet service. If sslPort,
// sslCert and sslKey are informed, it will start an https (TLS) server on the specified endpoint.
func (w *Wallet) Init(endpoint, port, sslPort, sslCert, sslKey string) string {
	var err, errTLS error

	r := w.router()

	// setup shutdown channel
	w.sc = make(chan struct{})

	// start http server
	if port != "" {
		w.s = &http.Server{
			Handler: r,
			Addr:    endpoint + ":" + port,
			// Good practice: enforce timeouts for servers you create!
			WriteTimeout: writeTimeout * time.Second,
			ReadTimeout:  readTimeout * time.Second,
		}

		go func() {
			err = w.s.ListenAndServe()
		}()

		log.Printf("Listening to API http requests on %s:%s", endpoint, port)
	}
	// start https server
	if sslPort != "" && sslCert != "" && sslKey != "" {
		w.ss = &http.Server{
			Handler: r,
			Addr:    endpoint + ":" + sslPort,
			// Good practice: enforce timeouts for servers you create!
			WriteTimeout: writeTimeout * time.Second,
			ReadTimeout:  readTimeout * time.Second,
		}

		go func() {
			errTLS = w.ss.ListenAndServeTLS(sslCert, sslKey)
		}()

		log.Printf("Listening to API https requests on %s:%s", endpoint, sslPort)
	}
	// wait for servers to be shutdown
	<-w.sc

	return fmt.Sprintf("shutdown http server:%e, https server:%e", err, errTLS)
}
