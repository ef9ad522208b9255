package clients

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gopos/gopos-edge/internal/logger"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

// pageMessage is what pages send: their current location.
type pageMessage struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Serve upgrades the request to a websocket and keeps the page registered
// until the connection ends. pageURL is the page's initial location.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, pageURL string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logger.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()
	conn.SetReadLimit(maxMsgSize)

	client := h.Register(pageURL)
	defer h.Unregister(client.ID())

	// gorilla/websocket allows one concurrent writer
	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Go(func() {
		h.writePump(conn, client, done)
	})
	defer func() {
		close(done)
		wg.Wait()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil
		}
		var msg pageMessage
		if json.Unmarshal(data, &msg) != nil {
			h.Touch(client.ID(), "")
			continue
		}
		h.Touch(client.ID(), msg.URL)
	}
}

func (h *Hub) writePump(conn *websocket.Conn, client *Client, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-client.Send():
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				_ = conn.Close()
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("websocket write failed", logger.String("client_id", client.ID()), logger.Error(err))
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}
