package engine

import "qckiosk/session"

// sessionEmitter adapts the engine's EventBus to the session.EventEmitter
// interface.
type sessionEmitter struct {
	bus *EventBus
}

func (e *sessionEmitter) EmitSessionInit(orderNo string) {
	e.bus.Emit(Event{Type: EventSessionInit, Payload: SessionEvent{OrderNo: orderNo}})
}

func (e *sessionEmitter) EmitSessionLoaded(orderNo string) {
	e.bus.Emit(Event{Type: EventSessionLoaded, Payload: SessionEvent{OrderNo: orderNo}})
}

func (e *sessionEmitter) EmitSessionRemoved(orderNo string) {
	e.bus.Emit(Event{Type: EventSessionRemoved, Payload: SessionEvent{OrderNo: orderNo}})
}

func (e *sessionEmitter) EmitItemSelected(orderNo string, itemIndex int) {
	e.bus.Emit(Event{Type: EventItemSelected, Payload: ItemSelectedEvent{
		OrderNo: orderNo, ItemIndex: itemIndex,
	}})
}

func (e *sessionEmitter) EmitPhotoAdded(itemIndex, totalPhotos int) {
	e.bus.Emit(Event{Type: EventPhotoAdded, Payload: PhotoEvent{
		ItemIndex: itemIndex, Count: totalPhotos,
	}})
}

func (e *sessionEmitter) EmitPhotoRemoved(itemIndex, remaining int) {
	e.bus.Emit(Event{Type: EventPhotoRemoved, Payload: PhotoEvent{
		ItemIndex: itemIndex, Count: remaining,
	}})
}

func (e *sessionEmitter) EmitChecksUpdated(orderNo string, itemIndex int, patch map[string]session.CheckState) {
	flat := make(map[string]string, len(patch))
	for k, v := range patch {
		flat[k] = string(v)
	}
	e.bus.Emit(Event{Type: EventChecksUpdated, Payload: ChecksUpdatedEvent{
		OrderNo: orderNo, ItemIndex: itemIndex, Patch: flat,
	}})
}

func (e *sessionEmitter) EmitCommentsUpdated(orderNo string, itemIndex int, sectionID string) {
	e.bus.Emit(Event{Type: EventCommentsUpdated, Payload: CommentsUpdatedEvent{
		OrderNo: orderNo, ItemIndex: itemIndex, SectionID: sectionID,
	}})
}

func (e *sessionEmitter) EmitLogsChanged() {
	e.bus.Emit(Event{Type: EventLogsChanged})
}

func (e *sessionEmitter) EmitStorageAlert(message string) {
	e.bus.Emit(Event{Type: EventStorageAlert, Payload: StorageAlertEvent{Message: message}})
}
