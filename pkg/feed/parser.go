package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyAlert is returned for alert messages without text.
var ErrEmptyAlert = errors.New("alert message has no text")

// Alert is one alert received from the feed.
type Alert struct {
	Text       string
	Source     string
	ReceivedAt time.Time
}

// Message is the top-level JSON frame of the feed.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// AlertData is the payload of an "alert" frame.
type AlertData struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// ParseMessage converts one text frame into an Alert. Frames that are not
// JSON objects are taken verbatim as alert text. JSON frames of any type
// other than "alert" (heartbeats, acks) return nil.
func ParseMessage(data []byte, source string) (*Alert, error) {
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return nil, ErrEmptyAlert
	}

	if !strings.HasPrefix(raw, "{") {
		return &Alert{Text: raw, Source: source, ReceivedAt: time.Now()}, nil
	}

	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}

	if msg.Type != "alert" {
		return nil, nil
	}

	var payload AlertData
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal alert data: %w", err)
	}

	text := strings.TrimSpace(payload.Text)
	if text == "" {
		return nil, ErrEmptyAlert
	}

	if payload.Source != "" {
		source = payload.Source
	}
	return &Alert{Text: text, Source: source, ReceivedAt: time.Now()}, nil
}
