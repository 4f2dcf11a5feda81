package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/angple/kb-engine/internal/metrics"
	"github.com/angple/kb-engine/internal/repository"
	pkglogger "github.com/angple/kb-engine/pkg/logger"
)

// AssignmentNotice tells an assignee an article was handed to them
type AssignmentNotice struct {
	TenantID   uint64
	ArticleID  uint64
	Reference  string
	AssigneeID uint64
	AssignerID uint64
}

// Notifier accepts notices without blocking the caller
type Notifier interface {
	Notify(n AssignmentNotice)
}

// Sender delivers one notice
type Sender interface {
	Send(ctx context.Context, n AssignmentNotice) error
}

// Dispatcher queues notices and delivers them on a background goroutine.
// A full queue drops the notice; delivery errors are logged.
type Dispatcher struct {
	sender  Sender
	queue   chan AssignmentNotice
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher with a bounded queue
func NewDispatcher(sender Sender, queueSize int) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Dispatcher{
		sender:  sender,
		queue:   make(chan AssignmentNotice, queueSize),
		timeout: 30 * time.Second,
	}
}

// Start launches the delivery goroutine
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for n := range d.queue {
			d.deliver(n)
		}
	}()
}

// Stop delivers what is queued and stops
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) Notify(n AssignmentNotice) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.Notifications.WithLabelValues("dropped").Inc()
		return
	}
	select {
	case d.queue <- n:
	default:
		metrics.Notifications.WithLabelValues("dropped").Inc()
		pkglogger.WithArticle(n.TenantID, n.ArticleID).Warn().Msg("notification queue full, dropping assignment notice")
	}
}

func (d *Dispatcher) deliver(n AssignmentNotice) {
	defer func() {
		if r := recover(); r != nil {
			metrics.Notifications.WithLabelValues("failed").Inc()
			pkglogger.WithArticle(n.TenantID, n.ArticleID).Error().Interface("panic", r).Msg("notification sender panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.sender.Send(ctx, n); err != nil {
		metrics.Notifications.WithLabelValues("failed").Inc()
		pkglogger.WithArticle(n.TenantID, n.ArticleID).Warn().Err(err).Uint64("assignee_id", n.AssigneeID).Msg("assignment notification failed")
		return
	}
	metrics.Notifications.WithLabelValues("sent").Inc()
}

// MailConfig SMTP settings of MailSender
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// MailSender emails the assignee through SMTP
type MailSender struct {
	dialer *gomail.Dialer
	from   string
	users  repository.UserRepository
}

// NewMailSender creates a MailSender
func NewMailSender(cfg MailConfig, users repository.UserRepository) *MailSender {
	return &MailSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		users:  users,
	}
}

func (s *MailSender) Send(ctx context.Context, n AssignmentNotice) error {
	assignee, err := s.users.FindByID(ctx, n.TenantID, n.AssigneeID)
	if err != nil {
		return fmt.Errorf("load assignee: %w", err)
	}
	assignerName := "Someone"
	if assigner, err := s.users.FindByID(ctx, n.TenantID, n.AssignerID); err == nil && assigner.Name() != "" {
		assignerName = assigner.Name()
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", assignee.Email)
	msg.SetHeader("Subject", fmt.Sprintf("Article %s has been assigned to you", n.Reference))
	msg.SetBody("text/plain", fmt.Sprintf("Hi %s,\n\n%s assigned article %s to you.\n", assignee.Name(), assignerName, n.Reference))
	return s.dialer.DialAndSend(msg)
}

// LogSender only logs notices, used when mail is disabled
type LogSender struct{}

func (LogSender) Send(_ context.Context, n AssignmentNotice) error {
	pkglogger.WithArticle(n.TenantID, n.ArticleID).Info().
		Str("reference", n.Reference).
		Uint64("assignee_id", n.AssigneeID).
		Uint64("assigner_id", n.AssignerID).
		Msg("article assigned")
	return nil
}
