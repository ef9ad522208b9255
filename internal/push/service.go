package push

import (
	"context"
	"time"

	"github.com/gopos/gopos-edge/internal/datastore/v2/repository"
	"github.com/gopos/gopos-edge/internal/errors"
	"github.com/gopos/gopos-edge/internal/logger"
	"github.com/gopos/gopos-edge/internal/observability/metrics"
	"golang.org/x/time/rate"
)

var (
	// ErrNotificationNotFound is returned for unknown notification IDs.
	ErrNotificationNotFound = repository.ErrNotificationNotFound
	// ErrRateLimited is returned when push messages arrive faster than
	// the configured rate.
	ErrRateLimited = errors.NewStd("push rate limit exceeded")
)

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Options Options
	// RateLimit is the sustained number of push messages accepted per
	// second. Zero disables limiting.
	RateLimit float64
	Burst     int

	Repository repository.NotificationRepository
	Bus        *Bus
	Display    Display
	Opener     WindowOpener
	Metrics    *metrics.PushMetrics
	Logger     logger.Logger
}

// ClickResult reports what a notification click did.
type ClickResult struct {
	Notification *Notification `json:"notification"`
	// Opened is false when no page was open to navigate.
	Opened bool `json:"opened"`
}

// Service handles push messages and notification interactions.
type Service struct {
	opts    Options
	repo    repository.NotificationRepository
	bus     *Bus
	display Display
	opener  WindowOpener
	limiter *rate.Limiter
	metrics *metrics.PushMetrics
	log     logger.Logger
	now     func() time.Time
}

// NewService creates a Service.
func NewService(cfg *ServiceConfig) *Service {
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := max(cfg.Burst, 1)
	return &Service{
		opts:    cfg.Options,
		repo:    cfg.Repository,
		bus:     cfg.Bus,
		display: cfg.Display,
		opener:  cfg.Opener,
		limiter: rate.NewLimiter(limit, burst),
		metrics: cfg.Metrics,
		log:     log.Module("push"),
		now:     time.Now,
	}
}

// Handle turns a raw push message into a stored notification and queues
// it for display. Malformed payloads produce a notification with the
// default texts.
func (s *Service) Handle(ctx context.Context, data []byte, source string) (*Notification, error) {
	if !s.limiter.Allow() {
		s.metrics.RecordRateLimited()
		return nil, ErrRateLimited
	}
	n := Build(ParsePayload(data), s.opts, source, s.now().UTC())
	if err := s.repo.SaveNotification(ctx, n.toEntity()); err != nil {
		return nil, s.notificationError(err, "save", n.ID)
	}
	s.metrics.RecordReceived(source)
	if s.bus != nil && !s.bus.Publish(n) {
		s.log.Warn("notification stored but not delivered", logger.String("notification_id", n.ID))
	}
	s.log.Info("push received",
		logger.String("notification_id", n.ID),
		logger.String("source", source),
		logger.String("url", n.Data.URL))
	return n, nil
}

// Get returns one notification.
func (s *Service) Get(ctx context.Context, id string) (*Notification, error) {
	e, err := s.repo.GetNotification(ctx, id)
	if err != nil {
		return nil, s.lookupError(err, id)
	}
	return fromEntity(e), nil
}

// List returns notifications, newest first, and the total count.
func (s *Service) List(ctx context.Context, filter repository.NotificationFilter) ([]*Notification, int64, error) {
	rows, total, err := s.repo.ListNotifications(ctx, filter)
	if err != nil {
		return nil, 0, s.notificationError(err, "list", "")
	}
	out := make([]*Notification, 0, len(rows))
	for i := range rows {
		out = append(out, fromEntity(&rows[i]))
	}
	return out, total, nil
}

// Click dismisses the notification everywhere and opens a page at the URL
// it carries.
func (s *Service) Click(ctx context.Context, id string) (*ClickResult, error) {
	if err := s.repo.MarkClicked(ctx, id, s.now().UTC()); err != nil {
		return nil, s.lookupError(err, id)
	}
	n, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordClick()
	if s.display != nil {
		s.display.CloseNotification(id)
	}
	// rows written before paths were restricted may still hold any URL
	if !LocalPath(n.Data.URL) {
		n.Data.URL = s.opts.DefaultURL
	}
	opened := false
	if s.opener != nil {
		opened = s.opener.OpenWindow(n.Data.URL)
	}
	s.log.Info("notification clicked",
		logger.String("notification_id", id),
		logger.String("url", n.Data.URL),
		logger.Bool("opened", opened))
	return &ClickResult{Notification: n, Opened: opened}, nil
}

// Close dismisses the notification without opening anything.
func (s *Service) Close(ctx context.Context, id string) (*Notification, error) {
	if err := s.repo.MarkClosed(ctx, id, s.now().UTC()); err != nil {
		return nil, s.lookupError(err, id)
	}
	if s.display != nil {
		s.display.CloseNotification(id)
	}
	return s.Get(ctx, id)
}

// Purge deletes notifications created before cutoff.
func (s *Service) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := s.repo.DeleteNotificationsBefore(ctx, cutoff)
	if err != nil {
		return 0, s.notificationError(err, "purge", "")
	}
	return n, nil
}

func (s *Service) lookupError(err error, id string) error {
	if errors.Is(err, repository.ErrNotificationNotFound) {
		return errors.New(err).
			Component("push").
			Category(errors.CategoryNotFound).
			Context("notification_id", id).
			Build()
	}
	return s.notificationError(err, "lookup", id)
}

func (s *Service) notificationError(err error, op, id string) error {
	b := errors.New(err).
		Component("push").
		Category(errors.CategoryDatabase).
		Context("operation", op)
	if id != "" {
		b = b.Context("notification_id", id)
	}
	return b.Build()
}
