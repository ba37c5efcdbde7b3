package otp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

const timeout = 15 // seconds

// Server exposes the passcode service over a RESTful API.
type Server struct {
	svc *Service
	s   *http.Server
	sc  chan struct{}
}

// NewServer returns an http server over svc.
func NewServer(svc *Service) *Server {
	return &Server{svc: svc}
}

// router builds the API definition.
func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/send-otp", s.sendHandler).Methods("POST")     // email a fresh passcode
	r.HandleFunc("/verify-otp", s.verifyHandler).Methods("POST") // verify and consume a passcode
	return r
}

// sendHandler emails a fresh passcode to the address in the request body.
func (s *Server) sendHandler(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json;charset=utf8")

	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" {
		log.Printf("httpreq from %v %s err:missing email\n", r.RemoteAddr, r.RequestURI)
		rw.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(rw).Encode(map[string]string{"error": "email is required"})

		return
	}

	if err := s.svc.Issue(body.Email); err != nil {
		log.Printf("httpreq from %v %s email:%s err:%e\n", r.RemoteAddr, r.RequestURI, body.Email, err)
		rw.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(rw).Encode(map[string]string{"error": "could not send OTP"})

		return
	}
	log.Printf("httpreq from %v %s email:%s\n", r.RemoteAddr, r.RequestURI, body.Email)
	rw.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(rw).Encode(map[string]string{"status": "OTP sent"})
}

// verifyHandler verifies and consumes the passcode in the request body.
func (s *Server) verifyHandler(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json;charset=utf8")

	var body struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" || body.OTP == "" {
		log.Printf("httpreq from %v %s err:missing fields\n", r.RemoteAddr, r.RequestURI)
		rw.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(rw).Encode(map[string]string{"error": "email and otp are required"})

		return
	}

	ok := s.svc.Verify(body.Email, body.OTP)
	log.Printf("httpreq from %v %s email:%s verified:%v\n", r.RemoteAddr, r.RequestURI, body.Email, ok)
	if !ok {
		rw.WriteHeader(http.StatusUnauthorized)
	} else {
		rw.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(rw).Encode(map[string]bool{"verified": ok})
}

// Init sets up and starts the http server to service the RESTful API for the passcode service.
func (s *Server) Init(endpoint, port string) string {
	var err error

	s.sc = make(chan struct{})
	s.s = &http.Server{
		Handler: s.router(),
		Addr:    endpoint + ":" + port,
		// Good practice: enforce timeouts for servers you create!
		WriteTimeout: timeout * time.Second,
		ReadTimeout:  timeout * time.Second,
	}

	go func() {
		err = s.s.ListenAndServe()
	}()

	log.Printf("Listening to API http requests on %s:%s", endpoint, port)

	// wait for server to be shutdown
	<-s.sc

	return fmt.Sprintf("shutdown http server:%e", err)
}

// Stop shuts down the http server gracefully.
func (s *Server) Stop() {
	if s.s != nil {
		if err := s.s.Shutdown(context.Background()); err != nil {
			log.Printf("Error in http server shutdown:%e", err)
		}
	}
	if s.sc != nil {
		close(s.sc)
	}
}
