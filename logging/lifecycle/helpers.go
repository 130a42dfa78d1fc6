package lifecycle

import (
	"context"

	"extlayer/logging"
)

const (
	// EventExtensionCreated is emitted when a record is associated with a host object.
	EventExtensionCreated logging.EventType = "extension.created"
	// EventExtensionDeferred is emitted when construction happens during a load pass
	// and the record is left for the deserialize call.
	EventExtensionDeferred logging.EventType = "extension.deferred"
	// EventExtensionRestored is emitted when a deferred record is read back from a save.
	EventExtensionRestored logging.EventType = "extension.restored"
	// EventExtensionRemoved is emitted when a host object's record is destroyed.
	EventExtensionRemoved logging.EventType = "extension.removed"
	// EventWorldTeardown is emitted when a kind's registry is cleared in bulk.
	EventWorldTeardown logging.EventType = "extension.teardown"
	// EventReferenceInvalidated is emitted when a detach broadcast runs.
	EventReferenceInvalidated logging.EventType = "extension.reference_invalidated"
	// EventLoadFailed is emitted when a payload cannot be read back.
	EventLoadFailed logging.EventType = "extension.load_failed"
	// EventFatal is emitted right before the fatal handler runs.
	EventFatal logging.EventType = "extension.fatal"
)

// RecordPayload identifies the record an event refers to.
type RecordPayload struct {
	Kind string `json:"kind"`
}

// TeardownPayload reports how many records a bulk clear released.
type TeardownPayload struct {
	Kind     string `json:"kind"`
	Released int    `json:"released"`
	Deferred int    `json:"deferred"`
}

// ReferencePayload reports the outcome of a detach broadcast.
type ReferencePayload struct {
	All     bool `json:"all"`
	Visited int  `json:"visited"`
}

// FailurePayload describes a load or fatal failure.
type FailurePayload struct {
	Kind  string `json:"kind,omitempty"`
	Error string `json:"error"`
}

func HostObject(id string) logging.EntityRef {
	return logging.EntityRef{ID: id, Kind: logging.EntityKindHostObject}
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
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}

// ExtensionCreated publishes a record creation.
func ExtensionCreated(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload RecordPayload, extra map[string]any) {
	publish(ctx, pub, EventExtensionCreated, frame, actor, logging.SeverityDebug, payload, extra)
}

// ExtensionDeferred publishes a load-path construction.
func ExtensionDeferred(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload RecordPayload, extra map[string]any) {
	publish(ctx, pub, EventExtensionDeferred, frame, actor, logging.SeverityDebug, payload, extra)
}

// ExtensionRestored publishes a successful deserialize.
func ExtensionRestored(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload RecordPayload, extra map[string]any) {
	publish(ctx, pub, EventExtensionRestored, frame, actor, logging.SeverityDebug, payload, extra)
}

// ExtensionRemoved publishes a record destruction.
func ExtensionRemoved(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload RecordPayload, extra map[string]any) {
	publish(ctx, pub, EventExtensionRemoved, frame, actor, logging.SeverityDebug, payload, extra)
}

// WorldTeardown publishes a bulk clear of one kind.
func WorldTeardown(ctx context.Context, pub logging.Publisher, frame uint64, payload TeardownPayload, extra map[string]any) {
	actor := logging.EntityRef{Kind: logging.EntityKindWorld}
	publish(ctx, pub, EventWorldTeardown, frame, actor, logging.SeverityInfo, payload, extra)
}

// ReferenceInvalidated publishes a detach broadcast.
func ReferenceInvalidated(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload ReferencePayload, extra map[string]any) {
	publish(ctx, pub, EventReferenceInvalidated, frame, actor, logging.SeverityDebug, payload, extra)
}

// LoadFailed publishes a deserialize failure. The load pass is abandoned after this.
func LoadFailed(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload FailurePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventLoadFailed,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityError,
		Category: logging.CategoryPersistence,
		Payload:  payload,
		Extra:    extra,
	})
}

// Fatal publishes an unrecoverable failure.
func Fatal(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload FailurePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventFatal,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityError,
		Category: logging.CategorySystem,
		Payload:  payload,
		Extra:    extra,
	})
}
