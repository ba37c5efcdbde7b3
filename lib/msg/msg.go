// Package msg defines the interface for different message brokers.
//
package msg

import (
	"sync"
)

// Outcomes carried by transfer events.
const (
	Submitted = "submitted"
	Confirmed = "confirmed"
	Reverted  = "reverted"
)

// TransferEvent defines the message the wallet service publishes when a transfer changes state, so other services can
// observe wallet activity.
type TransferEvent struct {
	Hash    string `json:"hash"`
	From    string `json:"from"`
	To      string `json:"to"`
	Value   string `json:"value"` // wei, decimal string
	Outcome string `json:"outcome"`
}

type MsgBroker interface {
	Setup(interface{}) error
	Close() error

	// method for the wallet service
	SendEvent(e TransferEvent) error

	// method for downstream consumers
	GetEvents(mut *sync.Mutex) (<-chan TransferEvent, <-chan error, error)
}
