package push

import (
	"context"
	"fmt"
	"time"

	"github.com/gopos/gopos-edge/internal/errors"
	"github.com/gopos/gopos-edge/internal/logger"
	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
)

// Notifier delivers a notification somewhere.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, n *Notification) error
}

// Display shows and dismisses notifications on open pages.
type Display interface {
	ShowNotification(id string, notification any) int
	CloseNotification(id string) int
}

// WindowOpener focuses or opens a page at a URL. Returns false when no
// page could be used.
type WindowOpener interface {
	OpenWindow(url string) bool
}

// DisplayNotifier shows notifications on every open page.
type DisplayNotifier struct {
	display Display
	log     logger.Logger
}

// NewDisplayNotifier creates a notifier backed by d.
func NewDisplayNotifier(d Display, log logger.Logger) *DisplayNotifier {
	return &DisplayNotifier{display: d, log: log.Module("push.display")}
}

func (d *DisplayNotifier) Name() string { return "clients" }

// Notify is best effort: having no open page is not an error.
func (d *DisplayNotifier) Notify(_ context.Context, n *Notification) error {
	shown := d.display.ShowNotification(n.ID, n)
	d.log.Debug("notification shown",
		logger.String("notification_id", n.ID),
		logger.Int("clients", shown))
	return nil
}

// ShoutrrrNotifier forwards notifications to external services addressed
// by shoutrrr URLs (ntfy, telegram, discord, ...).
type ShoutrrrNotifier struct {
	name    string
	urls    []string
	timeout time.Duration
	sender  *router.ServiceRouter
}

// NewShoutrrrNotifier creates a notifier for urls. Call ValidateConfig
// before use.
func NewShoutrrrNotifier(name string, urls []string, timeout time.Duration) *ShoutrrrNotifier {
	return &ShoutrrrNotifier{name: name, urls: urls, timeout: timeout}
}

// ValidateConfig parses every URL and prepares the sender.
func (s *ShoutrrrNotifier) ValidateConfig() error {
	if len(s.urls) == 0 {
		return errors.Newf("shoutrrr notifier %q has no URLs", s.name).
			Component("push").
			Category(errors.CategoryConfiguration).
			Build()
	}
	sender, err := shoutrrr.CreateSender(s.urls...)
	if err != nil {
		return errors.New(err).
			Component("push").
			Category(errors.CategoryConfiguration).
			Context("notifier", s.name).
			Build()
	}
	s.sender = sender
	return nil
}

func (s *ShoutrrrNotifier) Name() string { return s.name }

// Notify sends the body with the title as a parameter. It gives up when
// ctx ends or the notifier timeout passes, whichever is first.
func (s *ShoutrrrNotifier) Notify(ctx context.Context, n *Notification) error {
	if s.sender == nil {
		if err := s.ValidateConfig(); err != nil {
			return err
		}
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	message := n.Body
	if n.Data.URL != "" {
		message = fmt.Sprintf("%s\n%s", n.Body, n.Data.URL)
	}
	params := types.Params{"title": n.Title}

	result := make(chan error, 1)
	go func() {
		result <- errors.Join(s.sender.Send(message, &params)...)
	}()

	select {
	case err := <-result:
		if err != nil {
			return errors.New(err).
				Component("push").
				Category(errors.CategoryNotification).
				Context("notifier", s.name).
				Build()
		}
		return nil
	case <-ctx.Done():
		return errors.New(ctx.Err()).
			Component("push").
			Category(errors.CategoryNotification).
			Context("notifier", s.name).
			Build()
	}
}
