// Package push turns push messages into notifications shown on open
// pages and handles the user's response to them.
package push

import (
	"github.com/antonholmquist/jason"
)

// Payload is the decoded body of a push message. Fields the sender did
// not set, or set to something other than a string, are empty.
type Payload struct {
	Title string
	Body  string
	URL   string
}

// ParsePayload decodes a push message body. Anything that is not a JSON
// object decodes as an empty payload.
func ParsePayload(data []byte) Payload {
	obj, err := jason.NewObjectFromBytes(data)
	if err != nil {
		return Payload{}
	}
	return Payload{
		Title: stringField(obj, "title"),
		Body:  stringField(obj, "body"),
		URL:   stringField(obj, "url"),
	}
}

func stringField(obj *jason.Object, key string) string {
	s, err := obj.GetString(key)
	if err != nil {
		return ""
	}
	return s
}
