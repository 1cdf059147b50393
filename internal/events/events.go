package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/alpipe/internal/domain"
	"github.com/phrazzld/alpipe/internal/task"
)

// Event types emitted by the controller.
const (
	TypeTickCompleted      = "tick.completed"
	TypeModelPromoted      = "model.promoted"
	TypeShardWritten       = "shard.written"
	TypeReloadFailed       = "config.reload_failed"
	TypeBootstrapCompleted = "bootstrap.completed"
)

// Phases reported in TickCompleted.
const (
	PhaseBootstrap   = "bootstrap"
	PhaseSteadyState = "steady_state"
)

// Event is one pipeline occurrence.
type Event struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is one of the Type* constants
	Type string `json:"type"`

	// Payload contains the type-specific data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *Event) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewEvent creates a new Event with the specified type and payload.
func NewEvent(eventType string, payload interface{}, at time.Time) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payloadBytes,
		CreatedAt: at,
	}, nil
}

// TickCompleted is the payload of TypeTickCompleted.
type TickCompleted struct {
	Phase  string        `json:"phase"`
	Tick   int64         `json:"tick"`
	Status domain.Status `json:"status"`
	Queues []task.Report `json:"queues"`
}

// ModelPromoted is the payload of TypeModelPromoted. Previous is nil when
// the first model is adopted.
type ModelPromoted struct {
	Previous *int `json:"previous_model_id"`
	ModelID  int  `json:"model_id"`
}

// ShardWritten is the payload of TypeShardWritten.
type ShardWritten struct {
	ShardID int `json:"shard_id"`
	Records int `json:"records"`
}

// ReloadFailed is the payload of TypeReloadFailed.
type ReloadFailed struct {
	Error    string `json:"error"`
	Failures int    `json:"failures"`
}

// BootstrapCompleted is the payload of TypeBootstrapCompleted.
type BootstrapCompleted struct {
	ModelID int `json:"model_id"`
	Records int `json:"records"`
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *Event) error
}

// EventEmitter defines an interface for components that can emit events.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *Event) error
}
