package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/tourvia/backend/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
		})
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Event subjects
const (
	UserSignedUp        = "user.signed_up"
	UserLoggedIn        = "user.logged_in"
	UserPasswordChanged = "user.password_changed"
	UserPhoneVerified   = "user.phone_verified"
	UserDeactivated     = "user.deactivated"
)

// Event payloads
type UserSignedUpEvent struct {
	UserID    int64     `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Provider  string    `json:"provider"`
	CreatedAt time.Time `json:"created_at"`
}

type UserLoggedInEvent struct {
	UserID   int64     `json:"user_id"`
	Method   string    `json:"method"` // password, google, email_code, sms_otp
	LoggedAt time.Time `json:"logged_at"`
}

type UserPasswordChangedEvent struct {
	UserID    int64     `json:"user_id"`
	ChangedAt time.Time `json:"changed_at"`
}

type UserPhoneVerifiedEvent struct {
	UserID     int64     `json:"user_id"`
	Phone      string    `json:"phone"`
	VerifiedAt time.Time `json:"verified_at"`
}

type UserDeactivatedEvent struct {
	UserID        int64     `json:"user_id"`
	DeactivatedAt time.Time `json:"deactivated_at"`
}
