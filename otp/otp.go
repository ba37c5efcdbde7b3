// Package otp implements the email one-time-passcode microservice backing wallet creation: a code is emailed to the
// user and verified before a wallet session is handed out.
package otp

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	cache "github.com/patrickmn/go-cache"
	gomail "gopkg.in/gomail.v2"
)

const (
	mailSubject = "Your Wallet Verification OTP"
	mailBody    = "Your OTP for wallet creation is: "
)

// ErrDelivery reports that the passcode email could not be sent.
var ErrDelivery = errors.New("could not deliver the passcode")

// Sender delivers a message to a recipient address.
type Sender interface {
	Send(to, subject, body string) error
}

// MailSender delivers messages over SMTP. Credentials come from the service configuration, they are never embedded
// here.
type MailSender struct {
	d    *gomail.Dialer
	from string
}

// NewMailSender returns a Sender for the given SMTP server and account.
func NewMailSender(host string, port int, user, pass, from string) *MailSender {
	return &MailSender{d: gomail.NewDialer(host, port, user, pass), from: from}
}

// Send delivers a plain-text message.
func (s *MailSender) Send(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	return s.d.DialAndSend(m)
}

// Service issues and verifies one-time passcodes. A code lives for the configured ttl and verifies at most once;
// issuing a new code for an address replaces any previous one.
type Service struct {
	codes  *cache.Cache
	sender Sender
}

// New returns a passcode service whose codes expire after ttl.
func New(sender Sender, ttl time.Duration) *Service {
	return &Service{codes: cache.New(ttl, ttl), sender: sender}
}

// Issue generates a fresh six-digit code for email, stores it and sends it out. The code is stored before delivery
// is attempted: a failed delivery still invalidates any previous code for the address.
func (s *Service) Issue(email string) error {
	code, err := genCode()
	if err != nil {
		return err
	}
	s.codes.SetDefault(email, code)
	if err = s.sender.Send(email, mailSubject, mailBody+code); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}

// Verify consumes the code stored for email. A match deletes the code so it cannot be replayed; an expired, unknown
// or mismatched code verifies false.
func (s *Service) Verify(email, code string) bool {
	v, ok := s.codes.Get(email)
	if !ok || v.(string) != code {
		return false
	}
	s.codes.Delete(email)
	return true
}

// genCode draws a uniform six-digit code from the system entropy source.
func genCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", n.Int64()+100000), nil
}
