package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a notification ID is unknown.
var ErrNotFound = errors.New("notification not found")

// Status is a notification's delivery state.
type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// Notification is one recorded outbound message.
type Notification struct {
	ID         uuid.UUID  `json:"id"`
	Channel    Channel    `json:"channel"`
	Recipient  string     `json:"recipient"`
	Subject    string     `json:"subject,omitempty"`
	Body       string     `json:"body"`
	TemplateID string     `json:"template_id,omitempty"`
	Status     Status     `json:"status"`
	Attempts   int        `json:"attempts"`
	LastError  string     `json:"last_error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
}

// NotificationManager renders, delivers and records messages. Records live
// in memory only; they exist for operator visibility and retry, not as a
// durable outbox.
type NotificationManager struct {
	email  EmailSender
	sms    SMSSender
	engine *TemplateEngine

	mu    sync.Mutex
	byID  map[uuid.UUID]*Notification
	order []uuid.UUID
}

// NewNotificationManager wires senders and the template engine together.
func NewNotificationManager(email EmailSender, sms SMSSender, engine *TemplateEngine) *NotificationManager {
	return &NotificationManager{
		email:  email,
		sms:    sms,
		engine: engine,
		byID:   make(map[uuid.UUID]*Notification),
	}
}

// Send delivers a pre-rendered message and records the outcome. The
// returned notification reflects the delivery result; a delivery failure
// is also returned as the error.
func (m *NotificationManager) Send(ctx context.Context, ch Channel, recipient, subject, body string) (*Notification, error) {
	n := &Notification{
		ID:        uuid.New(),
		Channel:   ch,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	err := m.deliver(ctx, n)
	m.record(n)
	return snapshot(n), err
}

// SendFromTemplate renders the template with data and delivers the result.
func (m *NotificationManager) SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*Notification, error) {
	r, err := m.engine.Render(templateID, data)
	if err != nil {
		return nil, err
	}
	n := &Notification{
		ID:         uuid.New(),
		Channel:    r.Channel,
		Recipient:  recipient,
		Subject:    r.Subject,
		Body:       r.Body,
		TemplateID: templateID,
		CreatedAt:  time.Now().UTC(),
	}
	err = m.deliver(ctx, n)
	m.record(n)
	return snapshot(n), err
}

// Retry re-attempts delivery of a failed notification.
func (m *NotificationManager) Retry(ctx context.Context, id uuid.UUID) (*Notification, error) {
	m.mu.Lock()
	n, ok := m.byID[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if n.Status != StatusFailed {
		m.mu.Unlock()
		return nil, fmt.Errorf("notification %s is %s, only failed notifications can be retried", id, n.Status)
	}
	m.mu.Unlock()

	err := m.deliver(ctx, n)

	m.mu.Lock()
	out := snapshot(n)
	m.mu.Unlock()
	return out, err
}

// Get returns a copy of one notification.
func (m *NotificationManager) Get(_ context.Context, id uuid.UUID) (*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return snapshot(n), nil
}

// ListByRecipient returns up to limit notifications for one recipient,
// newest first.
func (m *NotificationManager) ListByRecipient(_ context.Context, recipient string, limit int) []*Notification {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Notification, 0)
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		if n := m.byID[m.order[i]]; n.Recipient == recipient {
			out = append(out, snapshot(n))
		}
	}
	return out
}

// Stats counts notifications by delivery status.
func (m *NotificationManager) Stats(_ context.Context) map[Status]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := make(map[Status]int)
	for _, n := range m.byID {
		stats[n.Status]++
	}
	return stats
}

func (m *NotificationManager) deliver(ctx context.Context, n *Notification) error {
	var err error
	switch n.Channel {
	case ChannelEmail:
		err = m.email.SendEmail(ctx, n.Recipient, n.Subject, n.Body)
	case ChannelSMS:
		err = m.sms.SendSMS(ctx, n.Recipient, n.Body)
	default:
		err = fmt.Errorf("unsupported channel %q", n.Channel)
	}

	m.mu.Lock()
	n.Attempts++
	if err != nil {
		n.Status = StatusFailed
		n.LastError = err.Error()
	} else {
		n.Status = StatusSent
		n.LastError = ""
		now := time.Now().UTC()
		n.SentAt = &now
	}
	m.mu.Unlock()
	return err
}

func (m *NotificationManager) record(n *Notification) {
	m.mu.Lock()
	m.byID[n.ID] = n
	m.order = append(m.order, n.ID)
	m.mu.Unlock()
}

func snapshot(n *Notification) *Notification {
	cp := *n
	return &cp
}
