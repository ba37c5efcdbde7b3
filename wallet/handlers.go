package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	qrcode "github.com/skip2/go-qrcode"
)

const historyLimit = 15 // latest transfers shown

// Response defines the data structure returned to the client making the http request.
type Response struct {
	Body  string `json:"body"`
	Error string `json:"error,omitempty"`
}

// sendReq is the request body for resolve, estimate and send operations.
type sendReq struct {
	To     string `json:"to"`
	Amount string `json:"amount,omitempty"`
}

// sessionInfo is replied for session operations. The raw private key is never included.
type sessionInfo struct {
	Address string `json:"address"`
	Balance string `json:"balance"` // wei, decimal string
}

// contactReq is the request body to add an address book contact.
type contactReq struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// feeInfo is replied by the estimate operation. Available is false when the estimation service failed; the fee is
// then zero and must not be trusted at submit time.
type feeInfo struct {
	Fee       string `json:"fee"` // wei, decimal string
	Available bool   `json:"available"`
}

// httpStatus maps operation errors to coarse http status codes.
func httpStatus(err error) int {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve), errors.Is(err, ErrConfirmDelete):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, ErrSubmitInFlight):
		return http.StatusConflict
	case errors.Is(err, ErrInsufficientFunds):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// homeHandler just replies a welcome message to the client.
func (w *Wallet) homeHandler(rw http.ResponseWriter, r *http.Request) {
	var res Response
	// log request
	log.Printf("httpreq from %v %s\n", r.RemoteAddr, r.RequestURI)
	// just reply a welcome message
	res.Body = "Hello, this is your wallet!"
	// reply
	rw.Header().Set("Content-Type", "application/json;charset=utf8")
	_ = json.NewEncoder(rw).Encode(res)
}

// newSessionHandler generates a fresh credential and activates it, replying the derived address.
func (w *Wallet) newSessionHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var si sessionInfo

	defer func() {
		// reply to requester accordingly
		rw.Header().Set("Content-Type", "application/json;charset=utf8")

		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(httpStatus(err))
		} else {
			rw.WriteHeader(http.StatusOK)
			tmp, _ := json.Marshal(si)
			res.Body = string(tmp)
		}
		// log request and address
		log.Printf("httpreq from %v %s addr:%s err:%e\n", r.RemoteAddr, r.RequestURI, si.Address, err)
		// reply
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	addr, err := w.sessions.Create(r.Context())
	if err != nil {
		return
	}
	si = w.snapshot()
	si.Address = addr.Hex()
}

// importSessionHandler activates the private key given in the request body. The key is not echoed back.
func (w *Wallet) importSessionHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var si sessionInfo

	defer func() {
		rw.Header().Set("Content-Type", "application/json;charset=utf8")

		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(httpStatus(err))
		} else {
			rw.WriteHeader(http.StatusOK)
			tmp, _ := json.Marshal(si)
			res.Body = string(tmp)
		}
		// log request: only the derived address, never the key
		log.Printf("httpreq from %v %s addr:%s err:%e\n", r.RemoteAddr, r.RequestURI, si.Address, err)
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	var body struct {
		Key string `json:"key"`
	}
	if err = json.NewDecoder(r.Body).Decode(&body); err != nil {
		err = &ValidationError{Field: "key", Msg: "malformed request body"}

		return
	}

	addr, err := w.sessions.Import(r.Context(), body.Key)
	if err != nil {
		return
	}
	si = w.snapshot()
	si.Address = addr.Hex()
}

// restoreSessionHandler re-activates a previously persisted key, if one exists and is well-formed.
func (w *Wallet) restoreSessionHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var si sessionInfo

	var restored bool

	defer func() {
		rw.Header().Set("Content-Type", "application/json;charset=utf8")

		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(httpStatus(err))
		} else if !restored {
			rw.WriteHeader(http.StatusNotFound)
		} else {
			rw.WriteHeader(http.StatusOK)
			tmp, _ := json.Marshal(si)
			res.Body = string(tmp)
		}
		log.Printf("httpreq from %v %s restored:%v err:%e\n", r.RemoteAddr, r.RequestURI, restored, err)
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	addr, restored, err := w.sessions.Restore(r.Context())
	if err != nil || !restored {
		return
	}
	si = w.snapshot()
	si.Address = addr.Hex()
}

// sessionHandler replies the active session address and last fetched balance.
func (w *Wallet) sessionHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var si sessionInfo

	defer func() {
		rw.Header().Set("Content-Type", "application/json;charset=utf8")

		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(httpStatus(err))
		} else {
			rw.WriteHeader(http.StatusOK)
			tmp, _ := json.Marshal(si)
			res.Body = string(tmp)
		}
		log.Printf("httpreq from %v %s addr:%s err:%e\n", r.RemoteAddr, r.RequestURI, si.Address, err)
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	if _, err = w.sessions.Address(); err != nil {
		return
	}
	si = w.snapshot()
}

// endSessionHandler clears the persisted key, cancels the refresh timer and resets all session state.
func (w *Wallet) endSessionHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() {
		rw.Header().Set("Content-Type", "application/json;charset=utf8")

		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(httpStatus(err))
		} else {
			rw.WriteHeader(http.StatusOK)
			res.Body = "session ended"
		}
		log.Printf("httpreq from %v %s err:%e\n", r.RemoteAddr, r.RequestURI, err)
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	err = w.sessions.End()
}

// qrHandler replies a QR code PNG of the session address, for receiving transfers.
func (w *Wallet) qrHandler(rw http.ResponseWriter, r *http.Request) {
	addr, err := w.sessions.Address()
	if err != nil {
		log.Printf("httpreq from %v %s err:%e\n", r.RemoteAddr, r.RequestURI, err)
		rw.Header().Set("Content-Type", "application/json;charset=utf8")
		rw.WriteHeader(httpStatus(err))
		_ = json.NewEncoder(rw).Encode(&Response{Error: fmt.Sprintf("%s", err)})

		return
	}

	png, err := qrcode.Encode(addr.Hex(), qrcode.Medium, 256)
	if err != nil {
		rw.WriteHeader(http.StatusInternalServerError)

		return
	}
	log.Printf("httpreq from %v %s addr:%s\n", r.RemoteAddr, r.RequestURI, addr.Hex())
	rw.Header().Set("Content-Type", "image/png")
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write(png)
}

// historyHandler replies the latest transfers of the session address, newest first. An empty list means the explorer
// found none.
func (w *Wallet) historyHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var n int

	defer func() {
		rw.Header().Set("Content-Type", "application/json;charset=utf8")

		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(httpStatus(err))
		} else {
			rw.WriteHeader(http.StatusOK)
		}
		log.Printf("httpreq from %v %s txs:%d err:%e\n", r.RemoteAddr, r.RequestURI, n, err)
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	addr, err := w.sessions.Address()
	if err != nil {
		return
	}

	txs, err := w.hist.Transfers(r.Context(), addr)
	if err != nil {
		return
	}
	if len(txs) > historyLimit {
		txs = txs[:historyLimit]
	}
	n = len(txs)
	tmp, _ := json.Marshal(txs)
	res.Body = string(tmp)
}

// resolveHandler resolves the recipient in the request body to an address.
func (w *Wallet) resolveHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var addr string

	defer func() {
		rw.Header().Set("Content-Type", "application/json;charset=utf8")

		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(httpStatus(err))
		} else {
			rw.WriteHeader(http.StatusOK)
			res.Body = addr
		}
		log.Printf("httpreq from %v %s addr:%s err:%e\n", r.RemoteAddr, r.RequestURI, addr, err)
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	var body sendReq
	if err = json.NewDecoder(r.Body).Decode(&body); err != nil {
		err = &ValidationError{Field: "to", Msg: "malformed request body"}

		return
	}

	a, err := w.send.ResolveRecipient(r.Context(), body.To)
	if err != nil {
		return
	}
	addr = a.Hex()
}

// estimateHandler replies the estimated network fee for the transfer in the request body. When estimation fails the
// fee is zero and flagged unavailable rather than an error.
func (w *Wallet) estimateHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var fi feeInfo

	defer func() {
		rw.Header().Set("Content-Type", "application/json;charset=utf8")

		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(httpStatus(err))
		} else {
			rw.WriteHeader(http.StatusOK)
			tmp, _ := json.Marshal(fi)
			res.Body = string(tmp)
		}
		log.Printf("httpreq from %v %s fee:%+v err:%e\n", r.RemoteAddr, r.RequestURI, fi, err)
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	var body sendReq
	if err = json.NewDecoder(r.Body).Decode(&body); err != nil {
		err = &ValidationError{Field: "to", Msg: "malformed request body"}

		return
	}

	fee, err := w.send.EstimateCost(r.Context(), body.To, body.Amount)
	if errors.Is(err, ErrFeeUnavailable) {
		fi = feeInfo{Fee: "0", Available: false}
		err = nil

		return
	}
	if err != nil {
		return
	}
	fi = feeInfo{Fee: fee.String(), Available: true}
}

// sendHandler submits the transfer in the request body and waits for its confirmation, replying the transaction
// hash and terminal outcome.
func (w *Wallet) sendHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var result *Result

	defer func() {
		// reply to requester accordingly
		rw.Header().Set("Content-Type", "application/json;charset=utf8")

		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(httpStatus(err))
		} else {
			rw.WriteHeader(http.StatusAccepted)
			tmp, _ := json.Marshal(result)
			res.Body = string(tmp)
		}
		// log request and tx hash
		log.Printf("httpreq from %v %s result:%+v err:%e\n", r.RemoteAddr, r.RequestURI, result, err)
		// reply
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	var body sendReq
	if err = json.NewDecoder(r.Body).Decode(&body); err != nil {
		err = &ValidationError{Field: "to", Msg: "malformed request body"}

		return
	}

	result, err = w.send.SubmitTransfer(r.Context(), body.To, body.Amount)
}

// receiptHandler replies the confirmation status of the transaction hash in the uri.
func (w *Wallet) receiptHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var outcome Outcome

	defer func() {
		rw.Header().Set("Content-Type", "application/json;charset=utf8")

		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(httpStatus(err))
		} else {
			rw.WriteHeader(http.StatusOK)
			res.Body = string(outcome)
		}
		log.Printf("httpreq from %v %s outcome:%s err:%e\n", r.RemoteAddr, r.RequestURI, outcome, err)
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	v := mux.Vars(r)
	hash, ok := v["hash"]
	if !ok || len(hash) != 66 { // 66 = 0x + 32 bytes
		err = &ValidationError{Field: "hash", Msg: "a 32-byte hash is required"}

		return
	}

	outcome, err = w.receiptOutcome(r.Context(), hash)
}

// contactsHandler replies the stored address book contacts.
func (w *Wallet) contactsHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() {
		rw.Header().Set("Content-Type", "application/json;charset=utf8")

		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(httpStatus(err))
		} else {
			rw.WriteHeader(http.StatusOK)
		}
		log.Printf("httpreq from %v %s err:%e\n", r.RemoteAddr, r.RequestURI, err)
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	contacts, err := w.book.Contacts()
	if err != nil {
		return
	}
	tmp, _ := json.Marshal(contacts)
	res.Body = string(tmp)
}

// addContactHandler validates and stores a new contact.
func (w *Wallet) addContactHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() {
		rw.Header().Set("Content-Type", "application/json;charset=utf8")

		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(httpStatus(err))
		} else {
			rw.WriteHeader(http.StatusCreated)
		}
		log.Printf("httpreq from %v %s err:%e\n", r.RemoteAddr, r.RequestURI, err)
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	var body contactReq
	if err = json.NewDecoder(r.Body).Decode(&body); err != nil {
		err = &ValidationError{Field: "name", Msg: "malformed request body"}

		return
	}

	c, err := w.book.Add(body.Name, body.Address)
	if err != nil {
		return
	}
	tmp, _ := json.Marshal(c)
	res.Body = string(tmp)
}

// delContactHandler deletes the contact with the address in the uri. The ?confirm=true query is the explicit
// confirmation step: without it nothing is mutated.
func (w *Wallet) delContactHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() {
		rw.Header().Set("Content-Type", "application/json;charset=utf8")

		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(httpStatus(err))
		} else {
			rw.WriteHeader(http.StatusOK)
			res.Body = "contact deleted"
		}
		log.Printf("httpreq from %v %s err:%e\n", r.RemoteAddr, r.RequestURI, err)
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	v := mux.Vars(r)
	address, ok := v["address"]
	if !ok {
		err = &ValidationError{Field: "address", Msg: "address missing in uri"}

		return
	}

	err = w.book.Remove(address, r.URL.Query().Get("confirm") == "true")
}

// snapshot captures the active session for replies.
func (w *Wallet) snapshot() sessionInfo {
	si := sessionInfo{Balance: "0"}
	if addr, err := w.sessions.Address(); err == nil {
		si.Address = addr.Hex()
	}
	if bal, err := w.sessions.Balance(); err == nil {
		si.Balance = bal.String()
	}
	return si
}
