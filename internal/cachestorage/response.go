// Package cachestorage provides named cache stores mapping requests to
// captured responses, persisted through the datastore and memoised in
// memory.
package cachestorage

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/gopos/gopos-edge/internal/datastore/v2/entities"
	"golang.org/x/crypto/blake2b"
)

// ResponseType classifies where a response came from.
type ResponseType string

const (
	// ResponseTypeBasic is a same-origin, fully inspectable response.
	ResponseTypeBasic ResponseType = "basic"
	// ResponseTypeCORS came from, or was redirected to, another origin.
	ResponseTypeCORS ResponseType = "cors"
	// ResponseTypeOpaque is a cross-origin response whose details are hidden.
	ResponseTypeOpaque ResponseType = "opaque"
	// ResponseTypeDefault is used for synthesised responses.
	ResponseTypeDefault ResponseType = "default"
)

// Response is a captured HTTP response.
type Response struct {
	URL        string
	Status     int
	StatusText string
	Header     http.Header
	Body       []byte
	Type       ResponseType
}

// Clone returns a copy that shares no mutable state with r.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	c := *r
	c.Header = r.Header.Clone()
	c.Body = slices.Clone(r.Body)
	return &c
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Key derives the storage key of a request: blake2b-256 over
// "METHOD absolute-url".
func Key(method, absURL string) string {
	sum := blake2b.Sum256([]byte(strings.ToUpper(method) + " " + absURL))
	return hex.EncodeToString(sum[:])
}

func toEntity(method, absURL string, resp *Response) (*entities.CacheEntry, error) {
	header, err := json.Marshal(resp.Header)
	if err != nil {
		return nil, fmt.Errorf("encode headers for %s: %w", absURL, err)
	}
	typ := resp.Type
	if typ == "" {
		typ = ResponseTypeDefault
	}
	return &entities.CacheEntry{
		CacheKey:     Key(method, absURL),
		Method:       strings.ToUpper(method),
		URL:          absURL,
		Status:       resp.Status,
		StatusText:   resp.StatusText,
		Header:       string(header),
		Body:         resp.Body,
		ResponseType: string(typ),
	}, nil
}

func fromEntity(e *entities.CacheEntry) (*Response, error) {
	header := http.Header{}
	if e.Header != "" {
		if err := json.Unmarshal([]byte(e.Header), &header); err != nil {
			return nil, fmt.Errorf("decode headers for %s: %w", e.URL, err)
		}
	}
	return &Response{
		URL:        e.URL,
		Status:     e.Status,
		StatusText: e.StatusText,
		Header:     header,
		Body:       e.Body,
		Type:       ResponseType(e.ResponseType),
	}, nil
}
