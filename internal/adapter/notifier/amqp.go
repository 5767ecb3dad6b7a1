package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
)

// EventTypeMissionConfirmed is the envelope type of confirmation messages.
const EventTypeMissionConfirmed = "freelanceflow.mission.confirmed.v1"

// Meta describes a published envelope.
type Meta struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Type          string    `json:"type"`
	Time          time.Time `json:"time"`
}

// Envelope is the message body published to the exchange.
type Envelope struct {
	Meta Meta        `json:"meta"`
	Data interface{} `json:"data"`
}

// ConfirmationData is the data of a mission confirmation envelope.
type ConfirmationData struct {
	RecordID      string  `json:"record_id"`
	Service       string  `json:"service"`
	Description   string  `json:"description"`
	Price         float64 `json:"price"`
	ClientEmail   string  `json:"client_email"`
	Status        string  `json:"status"`
	InvoiceStatus string  `json:"invoice_status"`
}

const defaultConfirmTimeout = 10 * time.Second

// confirmChannel is the subset of *amqp.Channel used to publish with
// publisher confirms.
type confirmChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	NotifyReturn(c chan amqp.Return) chan amqp.Return
	IsClosed() bool
	Close() error
}

// AMQPNotifier publishes confirmations to a topic exchange so a downstream
// mailer can deliver them. A confirmation counts as sent only once the
// broker has routed and acked it.
type AMQPNotifier struct {
	mu             sync.Mutex
	open           func() (confirmChannel, error)
	ch             confirmChannel
	confirms       chan amqp.Confirmation
	returns        chan amqp.Return
	closers        []func() error
	exchange       string
	routingKey     string
	confirmTimeout time.Duration
}

// DialAMQP connects to the broker and declares a durable topic exchange.
// The channel is reopened, and the connection redialed, after a failure.
func DialAMQP(url, exchange, routingKey string) (*AMQPNotifier, error) {
	d := &amqpDialer{url: url, exchange: exchange}
	n := newAMQPNotifier(d.channel, exchange, routingKey)
	n.closers = []func() error{d.close}

	n.mu.Lock()
	err := n.reopenLocked()
	n.mu.Unlock()
	if err != nil {
		d.close()
		return nil, err
	}
	return n, nil
}

func newAMQPNotifier(open func() (confirmChannel, error), exchange, routingKey string) *AMQPNotifier {
	return &AMQPNotifier{
		open:           open,
		exchange:       exchange,
		routingKey:     routingKey,
		confirmTimeout: defaultConfirmTimeout,
	}
}

// amqpDialer owns the broker connection. It is only used under the
// notifier's lock.
type amqpDialer struct {
	url      string
	exchange string
	conn     *amqp.Connection
}

func (d *amqpDialer) channel() (confirmChannel, error) {
	if d.conn == nil || d.conn.IsClosed() {
		conn, err := amqp.Dial(d.url)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to broker: %w", err)
		}
		d.conn = conn
	}
	ch, err := d.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(d.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return ch, nil
}

func (d *amqpDialer) close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

// SendConfirmation publishes one persistent confirmation message and waits
// for the broker to ack it. The record id is used as correlation id. A nack,
// an unroutable message or a missing ack is an error.
func (n *AMQPNotifier) SendConfirmation(ctx context.Context, mission domain.Mission, recordID string) error {
	env := Envelope{
		Meta: Meta{
			ID:            uuid.NewString(),
			CorrelationID: recordID,
			Type:          EventTypeMissionConfirmed,
			Time:          time.Now().UTC(),
		},
		Data: ConfirmationData{
			RecordID:      recordID,
			Service:       mission.Service,
			Description:   mission.Description,
			Price:         mission.Price,
			ClientEmail:   mission.ClientEmail,
			Status:        mission.Status,
			InvoiceStatus: mission.InvoiceStatus,
		},
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.ch == nil || n.ch.IsClosed() {
		if err := n.reopenLocked(); err != nil {
			return fmt.Errorf("failed to publish confirmation: %w", err)
		}
	}

	err = n.ch.PublishWithContext(ctx, n.exchange, n.routingKey, true, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: recordID,
		Timestamp:     env.Meta.Time,
		Type:          EventTypeMissionConfirmed,
		Body:          body,
	})
	if err != nil {
		n.discardLocked()
		return fmt.Errorf("failed to publish confirmation: %w", err)
	}

	if err := n.awaitConfirmLocked(ctx, recordID); err != nil {
		// Late acks or returns would be read by the next publish.
		n.discardLocked()
		return err
	}
	log.Printf("INFO: published %s for %s to %s", n.routingKey, recordID, n.exchange)
	return nil
}

func (n *AMQPNotifier) awaitConfirmLocked(ctx context.Context, recordID string) error {
	ctx, cancel := context.WithTimeout(ctx, n.confirmTimeout)
	defer cancel()

	select {
	case ret, ok := <-n.returns:
		if !ok {
			return fmt.Errorf("channel closed before confirmation of %s", recordID)
		}
		return unroutable(recordID, ret)
	case conf, ok := <-n.confirms:
		if !ok {
			return fmt.Errorf("channel closed before confirmation of %s", recordID)
		}
		// The broker sends basic.return before the ack of an unroutable message.
		select {
		case ret, ok := <-n.returns:
			if ok {
				return unroutable(recordID, ret)
			}
		default:
		}
		if !conf.Ack {
			return fmt.Errorf("broker rejected confirmation of %s", recordID)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("no broker ack for confirmation of %s: %w", recordID, ctx.Err())
	}
}

func unroutable(recordID string, ret amqp.Return) error {
	return fmt.Errorf("confirmation of %s was not routed: %d %s", recordID, ret.ReplyCode, ret.ReplyText)
}

func (n *AMQPNotifier) reopenLocked() error {
	n.discardLocked()
	ch, err := n.open()
	if err != nil {
		return err
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	n.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	n.returns = ch.NotifyReturn(make(chan amqp.Return, 1))
	n.ch = ch
	return nil
}

func (n *AMQPNotifier) discardLocked() {
	if n.ch == nil {
		return
	}
	if err := n.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		log.Printf("WARN: failed to close amqp channel: %v", err)
	}
	n.ch = nil
}

// Name returns "amqp".
func (n *AMQPNotifier) Name() string { return "amqp" }

// Close closes the channel and the connection.
func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.discardLocked()
	var first error
	for _, c := range n.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
