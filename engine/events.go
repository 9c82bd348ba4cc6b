package engine

import "time"

// EventType identifies the kind of event emitted by the Engine.
type EventType int

const (
	// Session lifecycle events
	EventSessionInit EventType = iota + 1
	EventSessionLoaded
	EventSessionRemoved

	// Item-scoped session events
	EventItemSelected
	EventPhotoAdded
	EventPhotoRemoved
	EventChecksUpdated
	EventCommentsUpdated
	EventLogsChanged

	// Controller events
	EventStateChanged
	EventUploadProgress
	EventPromptRequested
	EventStorageAlert
)

// Event is the envelope emitted by the Engine's EventBus.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   interface{}
}

// SessionEvent is emitted on session init, load and removal.
type SessionEvent struct {
	OrderNo string `json:"order_no"`
}

// ItemSelectedEvent is emitted when the operator changes the active item.
type ItemSelectedEvent struct {
	OrderNo   string `json:"order_no"`
	ItemIndex int    `json:"item_index"`
}

// PhotoEvent is emitted on photo add and remove.
type PhotoEvent struct {
	ItemIndex int `json:"item_index"`
	Count     int `json:"count"`
}

// ChecksUpdatedEvent carries the applied tri-state patch.
type ChecksUpdatedEvent struct {
	OrderNo   string            `json:"order_no"`
	ItemIndex int               `json:"item_index"`
	Patch     map[string]string `json:"patch"`
}

// CommentsUpdatedEvent is emitted when a section comment changes.
type CommentsUpdatedEvent struct {
	OrderNo   string `json:"order_no"`
	ItemIndex int    `json:"item_index"`
	SectionID string `json:"section_id"`
}

// StateChangedEvent is emitted on every controller transition.
type StateChangedEvent struct {
	From    string `json:"from"`
	To      string `json:"to"`
	OrderNo string `json:"order_no,omitempty"`
	Msg     string `json:"msg,omitempty"`
	Warn    bool   `json:"warn,omitempty"`
}

// UploadProgressEvent is emitted per uploaded photo.
type UploadProgressEvent struct {
	Done  int    `json:"done"`
	Total int    `json:"total"`
	Text  string `json:"text"`
}

// PromptRequestedEvent asks presentation layers to pose a question.
type PromptRequestedEvent struct {
	PromptID string `json:"prompt_id"`
	Kind     string `json:"kind"` // "resume" or "append"
	Text     string `json:"text"`
	Choices  any    `json:"choices,omitempty"`
}

// StorageAlertEvent is emitted when a persist cycle fails.
type StorageAlertEvent struct {
	Message string `json:"message"`
}
