// Package fsm is the pure application state machine. Reduce has no side
// effects; everything observable happens in the driver on state entry.
package fsm

import "qckiosk/api"

// State is a controller state.
type State string

const (
	StateInit         State = "INIT"
	StateResumePrompt State = "RESUME_PROMPT"
	StateWaitingScan  State = "WAITING_SCAN"
	StateLoading      State = "LOADING"
	StateReady        State = "READY"
	StateUploading    State = "UPLOADING"
	StateError        State = "ERROR"
)

// EventType identifies a dispatched event.
type EventType string

const (
	EventContinue       EventType = "CONTINUE"
	EventResumeAccepted EventType = "RESUME_ACCEPTED"
	EventNoResume       EventType = "NO_RESUME"
	EventScanOK         EventType = "SCAN_OK"
	EventScanFail       EventType = "SCAN_FAIL"
	EventNoAppend       EventType = "NO_APPEND"
	EventDoneClicked    EventType = "DONE_CLICKED"
	EventUploadOK       EventType = "UPLOAD_OK"
	EventUploadFail     EventType = "UPLOAD_FAIL"
	EventAck            EventType = "ACK"
	// EventFault routes any unexpected failure into ERROR from wherever it
	// occurred; the reducer records the source state.
	EventFault EventType = "FAULT"
)

// Event is one dispatched occurrence plus its payload. Unused fields stay
// zero; the reducer only reads what the transition defines.
type Event struct {
	Type     EventType
	OrderNo  string
	Order    *api.SalesOrder
	Resuming bool
	Msg      string
	Warn     bool
	Return   State
}

// Context travels with the status across transitions. Order fields survive
// an ERROR round-trip so the remembered state resumes intact.
type Context struct {
	OrderNo  string
	Order    *api.SalesOrder
	Resuming bool

	// Error presentation fields, set only while in ERROR.
	Msg        string
	Warn       bool
	Return     State
	Source     State
	CloseModal bool
}

// Status is the complete controller state: where we are plus the context
// that got us here.
type Status struct {
	State State
	Ctx   Context
}

// Initial returns the boot status.
func Initial() Status {
	return Status{State: StateInit}
}

// Reduce maps (status, event) to the next status. Any pair not covered by
// the transition table returns the input unchanged, so stray or stale events
// are harmless by construction.
func Reduce(st Status, ev Event) Status {
	if ev.Type == EventFault && st.State != StateError {
		return toError(st, ev, false)
	}

	switch st.State {
	case StateInit:
		// Entry state: any event advances.
		return Status{State: StateResumePrompt, Ctx: st.Ctx}

	case StateResumePrompt:
		switch ev.Type {
		case EventResumeAccepted:
			return Status{State: StateLoading, Ctx: Context{
				OrderNo:  ev.OrderNo,
				Order:    ev.Order,
				Resuming: true,
			}}
		case EventNoResume:
			return Status{State: StateWaitingScan}
		}

	case StateWaitingScan:
		switch ev.Type {
		case EventScanOK:
			return Status{State: StateLoading, Ctx: Context{
				OrderNo: ev.OrderNo,
				Order:   ev.Order,
			}}
		case EventScanFail:
			e := ev
			e.Warn = true
			e.Return = StateWaitingScan
			return toError(st, e, false)
		}

	case StateLoading:
		// Anything but an explicit decline falls through to READY.
		if ev.Type == EventNoAppend {
			return Status{State: StateWaitingScan}
		}
		return Status{State: StateReady, Ctx: st.Ctx}

	case StateReady:
		if ev.Type == EventDoneClicked {
			return Status{State: StateUploading, Ctx: st.Ctx}
		}

	case StateUploading:
		switch ev.Type {
		case EventUploadOK:
			return Status{State: StateWaitingScan}
		case EventUploadFail:
			e := ev
			e.Return = StateReady
			return toError(st, e, true)
		}

	case StateError:
		if ev.Type == EventAck {
			next := st.Ctx.Return
			if next == "" {
				next = StateWaitingScan
			}
			ctx := st.Ctx
			ctx.Msg = ""
			ctx.Warn = false
			ctx.Return = ""
			ctx.Source = ""
			ctx.CloseModal = false
			return Status{State: next, Ctx: ctx}
		}
	}
	return st
}

func toError(st Status, ev Event, closeModal bool) Status {
	ctx := st.Ctx
	ctx.Msg = ev.Msg
	ctx.Warn = ev.Warn
	ctx.Return = ev.Return
	ctx.Source = st.State
	ctx.CloseModal = closeModal
	return Status{State: StateError, Ctx: ctx}
}
