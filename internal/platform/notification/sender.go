package notification

import (
	"context"
	"sync"
)

// EmailSender delivers one email message.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers one SMS message.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// EmailCall is one recorded SendEmail invocation.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender records every send instead of delivering. Set Err to
// make sends fail.
type MockEmailSender struct {
	Err error

	mu    sync.Mutex
	calls []EmailCall
}

func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	m.mu.Unlock()
	return m.Err
}

// Calls returns a copy of the recorded sends.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmailCall(nil), m.calls...)
}

// SMSCall is one recorded SendSMS invocation.
type SMSCall struct {
	To   string
	Body string
}

// MockSMSSender records every send instead of delivering. Set Err to make
// sends fail.
type MockSMSSender struct {
	Err error

	mu    sync.Mutex
	calls []SMSCall
}

func (m *MockSMSSender) SendSMS(_ context.Context, to, body string) error {
	m.mu.Lock()
	m.calls = append(m.calls, SMSCall{To: to, Body: body})
	m.mu.Unlock()
	return m.Err
}

// Calls returns a copy of the recorded sends.
func (m *MockSMSSender) Calls() []SMSCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SMSCall(nil), m.calls...)
}
