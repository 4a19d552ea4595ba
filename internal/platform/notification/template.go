// Package notification delivers appointment lifecycle messages to patients
// over email and SMS. Messages are rendered from registered templates,
// recorded in memory, and exposed over a small staff-facing HTTP surface.
// Delivery failures never propagate into booking outcomes; failed messages
// can be retried by an operator.
package notification

import (
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// Channel is the delivery medium for a message.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Template describes a renderable message. Subject is ignored for SMS.
type Template struct {
	ID      string
	Name    string
	Subject string
	Body    string
	Channel Channel
}

// Rendered is a template instantiated with appointment data.
type Rendered struct {
	Channel Channel
	Subject string
	Body    string
}

type compiled struct {
	meta    Template
	subject *template.Template
	body    *template.Template
}

// TemplateEngine parses templates once at registration and renders them
// with per-message data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*compiled
}

// NewTemplateEngine returns an engine with the appointment lifecycle
// templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*compiled)}
	for _, t := range builtinTemplates {
		if err := e.Register(t); err != nil {
			panic(fmt.Sprintf("builtin template %s: %v", t.ID, err))
		}
	}
	return e
}

var builtinTemplates = []Template{
	{
		ID:      "appointment-booked",
		Name:    "Appointment Booked",
		Subject: "Appointment confirmed for {{.patient_name}}",
		Body:    "Dear {{.patient_name}}, your appointment with {{.doctor}} is booked for {{.date}} at {{.time}}.",
		Channel: ChannelEmail,
	},
	{
		ID:      "appointment-rescheduled",
		Name:    "Appointment Rescheduled",
		Subject: "Your appointment has been moved",
		Body:    "Dear {{.patient_name}}, your appointment with {{.doctor}} now takes place on {{.date}} at {{.time}}.",
		Channel: ChannelEmail,
	},
	{
		ID:      "appointment-cancelled",
		Name:    "Appointment Cancelled",
		Subject: "Your appointment has been cancelled",
		Body:    "Dear {{.patient_name}}, your appointment with {{.doctor}} on {{.date}} at {{.time}} has been cancelled.",
		Channel: ChannelEmail,
	},
	{
		ID:      "appointment-reminder",
		Name:    "Appointment Reminder",
		Subject: "Appointment reminder for {{.patient_name}}",
		Body:    "Dear {{.patient_name}}, this is a reminder of your appointment with {{.doctor}} on {{.date}} at {{.time}}.",
		Channel: ChannelEmail,
	},
	{
		ID:      "appointment-reminder-sms",
		Name:    "Appointment Reminder (SMS)",
		Body:    "Reminder: appointment with {{.doctor}} on {{.date}} at {{.time}}. Reply CANCEL to cancel.",
		Channel: ChannelSMS,
	},
}

// Register parses and stores a template, replacing any existing one with
// the same ID.
func (e *TemplateEngine) Register(t Template) error {
	if t.ID == "" {
		return fmt.Errorf("template has no id")
	}
	c := &compiled{meta: t}
	var err error
	if t.Subject != "" {
		c.subject, err = parseOne(t.ID+":subject", t.Subject)
		if err != nil {
			return err
		}
	}
	c.body, err = parseOne(t.ID+":body", t.Body)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.templates[t.ID] = c
	e.mu.Unlock()
	return nil
}

func parseOne(name, text string) (*template.Template, error) {
	t, err := template.New(name).Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	return t, nil
}

// Render instantiates the template with data. Unknown template IDs are an
// error; data keys the template does not reference are ignored.
func (e *TemplateEngine) Render(id string, data map[string]string) (Rendered, error) {
	e.mu.RLock()
	c, ok := e.templates[id]
	e.mu.RUnlock()
	if !ok {
		return Rendered{}, fmt.Errorf("template %q not found", id)
	}

	out := Rendered{Channel: c.meta.Channel}
	if c.subject != nil {
		s, err := execute(c.subject, data)
		if err != nil {
			return Rendered{}, err
		}
		out.Subject = s
	}
	b, err := execute(c.body, data)
	if err != nil {
		return Rendered{}, err
	}
	out.Body = b
	return out, nil
}

func execute(t *template.Template, data map[string]string) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return b.String(), nil
}
