// Package clients tracks the pages that are currently open against the
// edge and pushes control messages to them over websockets.
package clients

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gopos/gopos-edge/internal/logger"
)

// Message types sent to pages.
const (
	TypeControllerChange  = "controllerchange"
	TypeNavigate          = "navigate"
	TypeNotificationShow  = "notification.show"
	TypeNotificationClose = "notification.close"
)

const sendBuffer = 16

// Message is one control message delivered to a page.
type Message struct {
	Type           string `json:"type"`
	Controller     string `json:"controller,omitempty"`
	URL            string `json:"url,omitempty"`
	NotificationID string `json:"notification_id,omitempty"`
	Notification   any    `json:"notification,omitempty"`
}

// Info describes an open page.
type Info struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Controller  string    `json:"controller,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
	LastSeen    time.Time `json:"last_seen"`
}

// Client is a registered page. Messages for it are queued on Send.
type Client struct {
	info Info
	send chan Message
}

// ID returns the client identifier.
func (c *Client) ID() string { return c.info.ID }

// Send returns the queue of messages addressed to the client. It is
// closed when the client is unregistered.
func (c *Client) Send() <-chan Message { return c.send }

// Hub is the registry of open pages.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]*Client
	controller string
	now        func() time.Time
	log        logger.Logger
}

// NewHub creates an empty registry.
func NewHub(log logger.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		now:     time.Now,
		log:     log.Module("clients"),
	}
}

// Register adds a page. Pages that open while a version is in control are
// controlled by it from the start.
func (h *Hub) Register(url string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	c := &Client{
		info: Info{
			ID:          uuid.NewString(),
			URL:         url,
			Controller:  h.controller,
			ConnectedAt: now,
			LastSeen:    now,
		},
		send: make(chan Message, sendBuffer),
	}
	h.clients[c.info.ID] = c
	h.log.Debug("client registered", logger.String("client_id", c.info.ID), logger.String("url", url))
	return c
}

// Unregister removes a page and closes its queue.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	if !ok {
		return
	}
	delete(h.clients, id)
	close(c.send)
	h.log.Debug("client unregistered", logger.String("client_id", id))
}

// Touch records activity from a page, optionally updating its URL.
func (h *Hub) Touch(id, url string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	if !ok {
		return
	}
	c.info.LastSeen = h.now()
	if url != "" {
		c.info.URL = url
	}
}

// MatchAll lists open pages, oldest connection first.
func (h *Hub) MatchAll() []Info {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Info, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c.info)
	}
	slices.SortFunc(out, func(a, b Info) int {
		if n := a.ConnectedAt.Compare(b.ConnectedAt); n != 0 {
			return n
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Controller returns the version currently in control of pages.
func (h *Hub) Controller() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.controller
}

// Claim makes version the controller of every open page and notifies
// them. Returns the number of pages claimed.
func (h *Hub) Claim(version string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.controller = version
	for _, c := range h.clients {
		c.info.Controller = version
		h.enqueue(c, Message{Type: TypeControllerChange, Controller: version})
	}
	h.log.Info("clients claimed", logger.String("controller", version), logger.Int("clients", len(h.clients)))
	return len(h.clients)
}

// OpenWindow asks the most recently active page to navigate to url.
// Returns false when no page is open.
func (h *Hub) OpenWindow(url string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var target *Client
	for _, c := range h.clients {
		if target == nil || c.info.LastSeen.After(target.info.LastSeen) {
			target = c
		}
	}
	if target == nil {
		h.log.Debug("no client to open window", logger.String("url", url))
		return false
	}
	h.enqueue(target, Message{Type: TypeNavigate, URL: url})
	return true
}

// ShowNotification broadcasts a notification to every page.
func (h *Hub) ShowNotification(id string, notification any) int {
	return h.broadcast(Message{Type: TypeNotificationShow, NotificationID: id, Notification: notification})
}

// CloseNotification tells every page to dismiss a notification.
func (h *Hub) CloseNotification(id string) int {
	return h.broadcast(Message{Type: TypeNotificationClose, NotificationID: id})
}

// Close unregisters every page.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}

func (h *Hub) broadcast(msg Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, c := range h.clients {
		if h.enqueue(c, msg) {
			delivered++
		}
	}
	return delivered
}

// enqueue must be called with h.mu held.
func (h *Hub) enqueue(c *Client, msg Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		h.log.Warn("client queue full, dropping message",
			logger.String("client_id", c.info.ID),
			logger.String("type", msg.Type))
		return false
	}
}
