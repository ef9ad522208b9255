package push

import (
	"encoding/json"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gopos/gopos-edge/internal/conf"
	"github.com/gopos/gopos-edge/internal/datastore/v2/entities"
	"github.com/k3a/html2text"
	"golang.org/x/text/unicode/norm"
)

// Sources a push message can arrive from.
const (
	SourceHTTP = "http"
	SourceMQTT = "mqtt"
	SourceCLI  = "cli"
)

// Options are the notification defaults applied to every payload.
type Options struct {
	DefaultTitle string
	DefaultBody  string
	DefaultURL   string
	Icon         string
	Badge        string
	Vibrate      []int
}

// DefaultOptions returns the stock GOPOS notification defaults.
func DefaultOptions() Options {
	return Options{
		DefaultTitle: conf.DefaultPushTitle,
		DefaultBody:  conf.DefaultPushBody,
		DefaultURL:   conf.DefaultPushURL,
		Icon:         conf.DefaultPushIcon,
		Badge:        conf.DefaultPushBadge,
		Vibrate:      slices.Clone(conf.DefaultVibrate),
	}
}

// OptionsFromSettings maps push settings onto Options, keeping the stock
// defaults for anything left empty.
func OptionsFromSettings(s *conf.PushSettings) Options {
	o := DefaultOptions()
	if s.DefaultTitle != "" {
		o.DefaultTitle = s.DefaultTitle
	}
	if s.DefaultBody != "" {
		o.DefaultBody = s.DefaultBody
	}
	if s.DefaultURL != "" {
		o.DefaultURL = s.DefaultURL
	}
	if s.Icon != "" {
		o.Icon = s.Icon
	}
	if s.Badge != "" {
		o.Badge = s.Badge
	}
	if s.Vibrate != nil {
		o.Vibrate = slices.Clone(s.Vibrate)
	}
	return o
}

// Data is carried with a notification and read back on click.
type Data struct {
	URL string `json:"url"`
}

// Notification is what open pages display.
type Notification struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Icon      string     `json:"icon,omitempty"`
	Badge     string     `json:"badge,omitempty"`
	Vibrate   []int      `json:"vibrate,omitempty"`
	Data      Data       `json:"data"`
	Source    string     `json:"source,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ClickedAt *time.Time `json:"clicked_at,omitempty"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// Build creates a notification from a payload, filling in defaults. HTML
// in the body is flattened to plain text.
func Build(p Payload, opts Options, source string, now time.Time) *Notification {
	title := normalize(p.Title)
	if title == "" {
		title = opts.DefaultTitle
	}
	body := normalize(p.Body)
	if strings.ContainsAny(body, "<&") {
		body = strings.TrimSpace(html2text.HTML2Text(body))
	}
	if body == "" {
		body = opts.DefaultBody
	}
	target := strings.TrimSpace(p.URL)
	if !LocalPath(target) {
		target = opts.DefaultURL
	}
	return &Notification{
		ID:        uuid.NewString(),
		Title:     title,
		Body:      body,
		Icon:      opts.Icon,
		Badge:     opts.Badge,
		Vibrate:   slices.Clone(opts.Vibrate),
		Data:      Data{URL: target},
		Source:    source,
		CreatedAt: now,
	}
}

func normalize(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

func (n *Notification) toEntity() *entities.PushNotification {
	vibrate, _ := json.Marshal(n.Vibrate)
	return &entities.PushNotification{
		ID:        n.ID,
		Title:     n.Title,
		Body:      n.Body,
		Icon:      n.Icon,
		Badge:     n.Badge,
		Vibrate:   string(vibrate),
		URL:       n.Data.URL,
		Source:    n.Source,
		CreatedAt: n.CreatedAt,
		ClickedAt: n.ClickedAt,
		ClosedAt:  n.ClosedAt,
	}
}

func fromEntity(e *entities.PushNotification) *Notification {
	var vibrate []int
	if e.Vibrate != "" {
		_ = json.Unmarshal([]byte(e.Vibrate), &vibrate)
	}
	return &Notification{
		ID:        e.ID,
		Title:     e.Title,
		Body:      e.Body,
		Icon:      e.Icon,
		Badge:     e.Badge,
		Vibrate:   vibrate,
		Data:      Data{URL: e.URL},
		Source:    e.Source,
		CreatedAt: e.CreatedAt,
		ClickedAt: e.ClickedAt,
		ClosedAt:  e.ClosedAt,
	}
}

// LocalPath reports whether raw is a path on the edge's own origin. Clicks
// only ever navigate to such paths.
func LocalPath(raw string) bool {
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return false
	}
	if strings.ContainsAny(raw, "\r\n\t") {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && u.Scheme == "" && u.Host == "" && u.User == nil
}
