package persistence

import (
	"context"

	"extlayer/logging"
)

const (
	// EventSaveWritten is emitted after the host envelope has been written.
	EventSaveWritten logging.EventType = "persistence.save_written"
	// EventLoadCompleted is emitted after every object and record has been restored.
	EventLoadCompleted logging.EventType = "persistence.load_completed"
	// EventLoadAborted is emitted when a load is abandoned and the world reset.
	EventLoadAborted logging.EventType = "persistence.load_aborted"
	// EventSlotStored is emitted when a save is written to the slot store.
	EventSlotStored logging.EventType = "persistence.slot_stored"
	// EventSlotDeleted is emitted when a save slot is removed.
	EventSlotDeleted logging.EventType = "persistence.slot_deleted"
)

// SavePayload summarises one save or load.
type SavePayload struct {
	Session  string `json:"session"`
	Objects  int    `json:"objects"`
	Bytes    int    `json:"bytes"`
	Checksum string `json:"checksum,omitempty"`
}

// AbortPayload describes why a load was abandoned.
type AbortPayload struct {
	Error string `json:"error"`
}

// SlotPayload identifies a save slot.
type SlotPayload struct {
	Slot    string `json:"slot"`
	Session string `json:"session,omitempty"`
	Bytes   int    `json:"bytes,omitempty"`
}

// World is the actor used for events that concern the whole host world.
func World(session string) logging.EntityRef {
	return logging.EntityRef{ID: session, Kind: logging.EntityKindWorld}
}

func publish(ctx context.Context, pub logging.Publisher, typ logging.EventType, frame uint64, actor logging.EntityRef, severity logging.Severity, payload any, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     typ,
		Frame:    frame,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryPersistence,
		Payload:  payload,
		Extra:    extra,
	})
}

// SaveWritten publishes a completed save.
func SaveWritten(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload SavePayload, extra map[string]any) {
	publish(ctx, pub, EventSaveWritten, frame, actor, logging.SeverityInfo, payload, extra)
}

// LoadCompleted publishes a completed load.
func LoadCompleted(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload SavePayload, extra map[string]any) {
	publish(ctx, pub, EventLoadCompleted, frame, actor, logging.SeverityInfo, payload, extra)
}

// LoadAborted publishes an abandoned load.
func LoadAborted(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload AbortPayload, extra map[string]any) {
	publish(ctx, pub, EventLoadAborted, frame, actor, logging.SeverityError, payload, extra)
}

// SlotStored publishes a slot write.
func SlotStored(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload SlotPayload, extra map[string]any) {
	publish(ctx, pub, EventSlotStored, 0, actor, logging.SeverityInfo, payload, extra)
}

// SlotDeleted publishes a slot removal.
func SlotDeleted(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload SlotPayload, extra map[string]any) {
	publish(ctx, pub, EventSlotDeleted, 0, actor, logging.SeverityInfo, payload, extra)
}
