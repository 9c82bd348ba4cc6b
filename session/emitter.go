package session

// EventEmitter receives session domain events for presentation layers.
type EventEmitter interface {
	EmitSessionInit(orderNo string)
	EmitSessionLoaded(orderNo string)
	EmitSessionRemoved(orderNo string)
	EmitItemSelected(orderNo string, itemIndex int)
	EmitPhotoAdded(itemIndex, totalPhotos int)
	EmitPhotoRemoved(itemIndex, remaining int)
	EmitChecksUpdated(orderNo string, itemIndex int, patch map[string]CheckState)
	EmitCommentsUpdated(orderNo string, itemIndex int, sectionID string)
	EmitLogsChanged()
	EmitStorageAlert(message string)
}

// NopEmitter discards all events.
type NopEmitter struct{}

func (NopEmitter) EmitSessionInit(string)                                 {}
func (NopEmitter) EmitSessionLoaded(string)                               {}
func (NopEmitter) EmitSessionRemoved(string)                              {}
func (NopEmitter) EmitItemSelected(string, int)                           {}
func (NopEmitter) EmitPhotoAdded(int, int)                                {}
func (NopEmitter) EmitPhotoRemoved(int, int)                              {}
func (NopEmitter) EmitChecksUpdated(string, int, map[string]CheckState)   {}
func (NopEmitter) EmitCommentsUpdated(string, int, string)                {}
func (NopEmitter) EmitLogsChanged()                                       {}
func (NopEmitter) EmitStorageAlert(string)                                {}
