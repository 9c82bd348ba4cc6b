package www

import (
	"context"
	"sync"
	"time"

	"qckiosk/engine"
	"qckiosk/store"

	"github.com/google/uuid"
)

// PromptBroker implements engine.Prompter by pushing questions to the
// browser over SSE and waiting for the answer to come back over HTTP. An
// unanswered prompt declines after the configured timeout so the controller
// never wedges on a walked-away operator.
type PromptBroker struct {
	bus     *engine.EventBus
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan promptAnswer
}

type promptAnswer struct {
	Accept  bool   `json:"accept"`
	OrderNo string `json:"order_no,omitempty"`
}

// NewPromptBroker creates a broker emitting on the engine bus.
func NewPromptBroker(bus *engine.EventBus, timeout time.Duration) *PromptBroker {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &PromptBroker{
		bus:     bus,
		timeout: timeout,
		pending: make(map[string]chan promptAnswer),
	}
}

func (b *PromptBroker) ask(ctx context.Context, kind, text string, choices any) (promptAnswer, bool) {
	id := uuid.New().String()
	ch := make(chan promptAnswer, 1)
	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	b.bus.Emit(engine.Event{Type: engine.EventPromptRequested, Payload: engine.PromptRequestedEvent{
		PromptID: id,
		Kind:     kind,
		Text:     text,
		Choices:  choices,
	}})

	select {
	case ans := <-ch:
		return ans, true
	case <-time.After(b.timeout):
		return promptAnswer{}, false
	case <-ctx.Done():
		return promptAnswer{}, false
	}
}

// Answer resolves a pending prompt. Returns false for unknown or already
// answered prompt ids.
func (b *PromptBroker) Answer(id string, ans promptAnswer) bool {
	b.mu.Lock()
	ch, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()
	if !ok {
		return false
	}
	ch <- ans
	return true
}

// ConfirmResume offers the draft list and returns the chosen order number.
func (b *PromptBroker) ConfirmResume(ctx context.Context, drafts []store.DraftEntry) (string, bool) {
	ans, ok := b.ask(ctx, "resume", "Resume a saved inspection?", drafts)
	if !ok || !ans.Accept {
		return "", false
	}
	orderNo := ans.OrderNo
	if orderNo == "" && len(drafts) > 0 {
		orderNo = drafts[0].OrderNo
	}
	return orderNo, orderNo != ""
}

// ConfirmAppend shows the existing-photos summary and asks to continue.
func (b *PromptBroker) ConfirmAppend(ctx context.Context, summary string) bool {
	ans, ok := b.ask(ctx, "append", summary, nil)
	return ok && ans.Accept
}

// ShowError pushes the message to the browser. The controller auto-acks, so
// there is nothing to wait for here; the UI decides how long to linger.
func (b *PromptBroker) ShowError(ctx context.Context, msg string, warn bool) {
	b.bus.Emit(engine.Event{Type: engine.EventPromptRequested, Payload: engine.PromptRequestedEvent{
		PromptID: uuid.New().String(),
		Kind:     "error",
		Text:     msg,
		Choices:  map[string]bool{"warn": warn},
	}})
}

var _ engine.Prompter = (*PromptBroker)(nil)
