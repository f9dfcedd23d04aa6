package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// Message is one queued delivery. The durable per-user notification sink is
// owned by the engine; this service only pushes copies out to external
// channels, best-effort.
type Message struct {
	UserID    string
	Channel   Channel
	Subject   string
	Body      string
	CreatedAt time.Time
}

type EmailSender interface {
	SendEmail(to, subject, body string) error
}

type SMSSender interface {
	SendSMS(to, message string) error
}

type PushSender interface {
	SendPush(userID, title, message string) error
}

// NotificationService fans queued messages out to delivery collaborators
// through a fixed worker pool. Enqueueing never blocks: a full queue drops
// the message, since the engine's sink already holds it.
type NotificationService struct {
	email   EmailSender
	sms     SMSSender
	push    PushSender
	queue   chan Message
	workers int

	shutdownChan chan struct{}
	wg           sync.WaitGroup
	logger       *slog.Logger
}

func NewNotificationService(
	email EmailSender,
	sms SMSSender,
	push PushSender,
	workers int,
	logger *slog.Logger,
) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}

	s := &NotificationService{
		email:        email,
		sms:          sms,
		push:         push,
		queue:        make(chan Message, 1000),
		workers:      workers,
		shutdownChan: make(chan struct{}),
		logger:       logger,
	}

	s.startWorkers()

	return s
}

// Notify enqueues a message for the default channel. Implements the engine's
// Notifier contract.
func (s *NotificationService) Notify(userID, message string) {
	s.Enqueue(Message{
		UserID:    userID,
		Channel:   ChannelEmail,
		Subject:   "Account update",
		Body:      message,
		CreatedAt: time.Now().UTC(),
	})
}

func (s *NotificationService) Enqueue(msg Message) {
	select {
	case s.queue <- msg:
	default:
		s.logger.Warn("notification queue full, message dropped",
			slog.String("user_id", msg.UserID),
			slog.String("channel", string(msg.Channel)))
	}
}

func (s *NotificationService) startWorkers() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *NotificationService) worker(id int) {
	defer s.wg.Done()

	s.logger.Info("notification worker started", slog.Int("worker_id", id))

	for {
		select {
		case msg := <-s.queue:
			s.deliver(msg, id)
		case <-s.shutdownChan:
			s.logger.Info("notification worker stopping", slog.Int("worker_id", id))
			return
		}
	}
}

func (s *NotificationService) deliver(msg Message, workerID int) {
	startTime := time.Now()
	var err error

	switch msg.Channel {
	case ChannelEmail:
		if s.email == nil {
			err = fmt.Errorf("no email sender configured")
			break
		}
		err = s.email.SendEmail(msg.UserID, msg.Subject, msg.Body)
	case ChannelSMS:
		if s.sms == nil {
			err = fmt.Errorf("no sms sender configured")
			break
		}
		err = s.sms.SendSMS(msg.UserID, msg.Body)
	case ChannelPush:
		if s.push == nil {
			err = fmt.Errorf("no push sender configured")
			break
		}
		err = s.push.SendPush(msg.UserID, msg.Subject, msg.Body)
	default:
		err = fmt.Errorf("unknown channel: %s", msg.Channel)
	}

	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error("notification delivery failed",
			slog.String("user_id", msg.UserID),
			slog.String("channel", string(msg.Channel)),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
			slog.Duration("duration", duration))
	} else {
		s.logger.Info("notification delivered",
			slog.String("user_id", msg.UserID),
			slog.String("channel", string(msg.Channel)),
			slog.Int("worker_id", workerID),
			slog.Duration("duration", duration))
	}
}

func (s *NotificationService) Shutdown(ctx context.Context) error {
	close(s.shutdownChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("notification service shutdown complete")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type MockEmailSender struct {
	mu         sync.Mutex
	SentEmails []struct {
		To      string
		Subject string
		Body    string
	}
}

func (m *MockEmailSender) SendEmail(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentEmails = append(m.SentEmails, struct {
		To      string
		Subject string
		Body    string
	}{to, subject, body})
	return nil
}

type MockSMSSender struct {
	mu      sync.Mutex
	SentSMS []struct {
		To      string
		Message string
	}
}

func (m *MockSMSSender) SendSMS(to, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentSMS = append(m.SentSMS, struct {
		To      string
		Message string
	}{to, message})
	return nil
}
