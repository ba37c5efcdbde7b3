// Package amqp implements the message broker interface for AMQP compliant brokers (ie RabbitMQ)
package amqp

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/streadway/amqp"

	"github.com/miniwallet/miniwallet/lib/msg"
)

// Amqp implements a connection to a broker and a channel for reuse.
type Amqp struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// New instantiates a new amqp broker.
func New(uri string) (msg.MsgBroker, error) {
	r := Amqp{}
	var err error

	if r.conn, err = amqp.Dial(uri); err != nil {
		return &r, err
	}
	r.ch = nil
	log.Printf("Connected to %s", uri)

	return &r, err
}

// Setup obtains an amqp channel and declares the message broker exchange:
//
// - te ("transfer events"): the wallet service publishes transfer lifecycle events to this exchange
func (r *Amqp) Setup(x interface{}) error {
	// obtain a one-use channel
	channel, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer channel.Close()
	// declare exchange
	return channel.ExchangeDeclare("te", "topic", true, false, false, false, nil)
}

// Close terminates gracefully the connection to the AMQP message broker
func (r *Amqp) Close() error {
	if r.ch != nil {
		if err := r.ch.Close(); err != nil {
			log.Printf("Error closing amqp.Channel:%e", err)
		}
		r.ch = nil
		log.Printf("amqp.Channel closed!")
	}
	return r.conn.Close()
}

// SendEvent publishes a transfer event to the "te" exchange
func (r *Amqp) SendEvent(e msg.TransferEvent) (err error) {
	// marshal to JSON
	var jsonDoc []byte
	if jsonDoc, err = json.Marshal(e); err != nil {
		return
	}
	// obtain channel if not present
	if r.ch == nil {
		if r.ch, err = r.conn.Channel(); err != nil {
			return
		}
	}
	// build body
	m := amqp.Publishing{
		Headers:     amqp.Table{"x-trans-name": e.Hash},
		Body:        jsonDoc,
		ContentType: "application/json",
	}
	// publish
	if err = r.ch.Publish("te", "trans."+e.Outcome+"."+e.Hash, false, false, m); err != nil {
		log.Printf("Error sending transfer event to message broker %e", err)
	}
	return
}

// GetEvents consumes events from the "te" exchange pushing them to the returned channel. The Mutex pointer is
// provided to ensure the consumed message has been fully dealt with by the management function, so the message
// consumed is only acknowledged when the mutex is unlocked.
func (r *Amqp) GetEvents(mut *sync.Mutex) (<-chan msg.TransferEvent, <-chan error, error) {
	var err error
	if r.ch == nil {
		if r.ch, err = r.conn.Channel(); err != nil {
			return nil, nil, err
		}
	}
	// declare queue
	if _, err = r.ch.QueueDeclare("tewallet", true, false, false, false, nil); err != nil {
		return nil, nil, err
	}

	// bind queue to exchange
	if err = r.ch.QueueBind("tewallet", "trans.*.*", "te", false, nil); err != nil {
		return nil, nil, err
	}
	// create channel for receiving events
	msgs, errCons := r.ch.Consume("tewallet", "wallet-events", false, false, false, false, nil)
	if errCons != nil {
		return nil, nil, errCons
	}
	// define channels to return
	eves := make(chan msg.TransferEvent)
	errors := make(chan error)
	// start routine to consume messages from broker
	go func() {
		for m := range msgs {
			var e *msg.TransferEvent = new(msg.TransferEvent)
			err := json.Unmarshal(m.Body, e)
			if err != nil {
				errors <- err
				continue
			}
			eves <- *e
			mut.Lock() // wait for the consumer to finish processing the event
			m.Ack(false)
		}
	}()
	return eves, errors, nil
}
