package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"

	"github.com/swpuclaylee/APIFlask/internal/audit/domain"
	auditrepo "github.com/swpuclaylee/APIFlask/internal/audit/repository"
	"github.com/swpuclaylee/APIFlask/internal/logging"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource. Used by the auth service
// and the admin audit middleware. LogEvent is best-effort: failures are logged and do not affect
// the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, action, resource, metadata string)
}

// Emitter mirrors persisted audit events to another sink such as OTel logs.
type Emitter interface {
	Emit(ctx context.Context, entry *domain.AuditLog) error
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	clock       clock.Clock
	log         *logrus.Entry
	emitter     Emitter
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown". clk nil means the wall clock.
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, clk clock.Clock, logger *logrus.Logger) *Logger {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Logger{
		repo:        repo,
		ipExtractor: ipExtractor,
		clock:       clk,
		log:         logging.OrDiscard(logger).WithField("component", "audit"),
	}
}

// WithEmitter mirrors every persisted event to e.
func (l *Logger) WithEmitter(e Emitter) *Logger {
	l.emitter = e
	return l
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, userID, action, resource, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	ip := ""
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	if ip == "" {
		ip = "unknown"
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: l.clock.Now().UTC(),
	}
	ctx = context.WithoutCancel(ctx)
	if err := l.repo.Create(ctx, entry); err != nil {
		l.log.WithError(err).WithFields(logrus.Fields{
			"action":   action,
			"resource": resource,
		}).Warn("failed to log audit event")
		return
	}
	if l.emitter != nil {
		if err := l.emitter.Emit(ctx, entry); err != nil {
			l.log.WithError(err).WithField("action", action).Debug("failed to emit audit event")
		}
	}
}
