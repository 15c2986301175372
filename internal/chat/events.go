// Package chat runs conversational question answering over a stored
// document: similarity search for context, schema-constrained answer
// generation, and streaming delivery with resolved image references.
package chat

import "time"

// EventType labels one streamed chat event.
type EventType string

const (
	EventSearchStart    EventType = "search_start"
	EventSearchComplete EventType = "search_complete"
	EventResponseStart  EventType = "response_start"
	EventContent        EventType = "content"
	EventImagesFound    EventType = "images_found"
	EventImage          EventType = "image"
	EventComplete       EventType = "complete"
	EventError          EventType = "error"
	EventEnd            EventType = "end"
)

// Event is one unit of the answer stream.
type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp string    `json:"timestamp"`
}

func newEvent(t EventType, data any) Event {
	return Event{
		Type:      t,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}
