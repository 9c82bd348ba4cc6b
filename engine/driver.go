package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"sync"

	"qckiosk/api"
	"qckiosk/checklist"
	"qckiosk/config"
	"qckiosk/fsm"
	"qckiosk/scan"
	"qckiosk/session"
	"qckiosk/store"
	"qckiosk/syncer"
)

// Camera abstracts the capture hardware. The driver only starts and stops
// it; frame capture goes through the web layer.
type Camera interface {
	Start(ctx context.Context) error
	Stop()
}

// NopCamera satisfies Camera for headless and test runs.
type NopCamera struct{}

func (NopCamera) Start(context.Context) error { return nil }
func (NopCamera) Stop()                       {}

// Prompter poses operator questions. Implementations block until answered,
// the context expires, or the question is declined.
type Prompter interface {
	// ConfirmResume offers the draft list; returns the chosen order number.
	ConfirmResume(ctx context.Context, drafts []store.DraftEntry) (string, bool)
	// ConfirmAppend shows the existing-photos summary and asks to continue.
	ConfirmAppend(ctx context.Context, summary string) bool
	// ShowError displays an error or warning message.
	ShowError(ctx context.Context, msg string, warn bool)
}

// declinePrompter answers no to everything; used when no presentation layer
// is attached.
type declinePrompter struct{}

func (declinePrompter) ConfirmResume(context.Context, []store.DraftEntry) (string, bool) {
	return "", false
}
func (declinePrompter) ConfirmAppend(context.Context, string) bool { return false }
func (declinePrompter) ShowError(context.Context, string, bool)    {}

// Driver owns the controller state machine. All transitions flow through one
// event loop goroutine; on-enter side effects run on a per-state goroutine
// that is cancelled the moment the state is left.
type Driver struct {
	cfg        *config.Config
	mgr        *session.Manager
	logger     *session.Logger
	api        *api.Client
	sync       *syncer.Syncer
	checklists *checklist.Loader
	prompter   Prompter
	camera     Camera
	bus        *EventBus
	barcodeRE  *regexp.Regexp

	mu     sync.RWMutex
	status fsm.Status

	events      chan fsm.Event
	wedgeCodes  chan string
	manualCodes chan string

	stateCancel context.CancelFunc
	stopChan    chan struct{}
	loopWG      sync.WaitGroup
	effectWG    sync.WaitGroup
}

// DriverConfig collects the driver's collaborators. Prompter and Camera are
// optional; nil gets a declining prompter and a no-op camera.
type DriverConfig struct {
	AppConfig  *config.Config
	Manager    *session.Manager
	Logger     *session.Logger
	API        *api.Client
	Syncer     *syncer.Syncer
	Checklists *checklist.Loader
	Prompter   Prompter
	Camera     Camera
	Bus        *EventBus
}

// NewDriver creates a driver; call Start to begin at INIT.
func NewDriver(c DriverConfig) (*Driver, error) {
	re, err := regexp.Compile(c.AppConfig.BarcodeRegex)
	if err != nil {
		return nil, fmt.Errorf("barcode regex: %w", err)
	}
	prompter := c.Prompter
	if prompter == nil {
		prompter = declinePrompter{}
	}
	camera := c.Camera
	if camera == nil {
		camera = NopCamera{}
	}
	return &Driver{
		cfg:         c.AppConfig,
		mgr:         c.Manager,
		logger:      c.Logger,
		api:         c.API,
		sync:        c.Syncer,
		checklists:  c.Checklists,
		prompter:    prompter,
		camera:      camera,
		bus:         c.Bus,
		barcodeRE:   re,
		status:      fsm.Initial(),
		events:      make(chan fsm.Event, 16),
		wedgeCodes:  make(chan string, 1),
		manualCodes: make(chan string, 1),
		stopChan:    make(chan struct{}),
	}, nil
}

// Start launches the event loop and enters INIT.
func (d *Driver) Start() {
	d.loopWG.Add(1)
	go d.loop()
	d.enter(d.Status())
}

// Stop halts the loop, cancels any in-flight side effect and waits for both
// to finish.
func (d *Driver) Stop() {
	close(d.stopChan)
	d.mu.Lock()
	if d.stateCancel != nil {
		d.stateCancel()
	}
	d.mu.Unlock()
	d.loopWG.Wait()
	d.effectWG.Wait()
	d.camera.Stop()
}

// Status returns a copy of the current controller status.
func (d *Driver) Status() fsm.Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// Dispatch queues an event for the controller. Safe from any goroutine.
func (d *Driver) Dispatch(ev fsm.Event) {
	select {
	case d.events <- ev:
	case <-d.stopChan:
	}
}

// SubmitScan feeds a hardware wedge code. Dropped unless the controller is
// waiting for one.
func (d *Driver) SubmitScan(code string) {
	select {
	case d.wedgeCodes <- code:
	default:
	}
}

// SubmitManual feeds a manually entered code.
func (d *Driver) SubmitManual(code string) {
	select {
	case d.manualCodes <- code:
	default:
	}
}

func (d *Driver) loop() {
	defer d.loopWG.Done()
	for {
		select {
		case ev := <-d.events:
			d.mu.Lock()
			prev := d.status
			next := fsm.Reduce(prev, ev)
			d.status = next
			changed := next.State != prev.State
			if changed && d.stateCancel != nil {
				d.stateCancel()
				d.stateCancel = nil
			}
			d.mu.Unlock()

			if changed {
				d.bus.Emit(Event{Type: EventStateChanged, Payload: StateChangedEvent{
					From:    string(prev.State),
					To:      string(next.State),
					OrderNo: next.Ctx.OrderNo,
					Msg:     next.Ctx.Msg,
					Warn:    next.Ctx.Warn,
				}})
				d.enter(next)
			}
		case <-d.stopChan:
			return
		}
	}
}

// enter launches the on-enter side effect for a state. The effect context
// dies when the state is left, so abandoned lookups and prompts unwind on
// their own.
func (d *Driver) enter(st fsm.Status) {
	ctx, cancel := context.WithCancel(context.Background())
	d.mu.Lock()
	d.stateCancel = cancel
	d.mu.Unlock()

	d.effectWG.Add(1)
	go func() {
		defer d.effectWG.Done()
		switch st.State {
		case fsm.StateInit:
			d.onInit(ctx)
		case fsm.StateResumePrompt:
			d.onResumePrompt(ctx)
		case fsm.StateWaitingScan:
			d.onWaitingScan(ctx)
		case fsm.StateLoading:
			d.onLoading(ctx, st.Ctx)
		case fsm.StateUploading:
			d.onUploading(ctx)
		case fsm.StateError:
			d.onError(ctx, st.Ctx)
		}
	}()
}

func (d *Driver) onInit(ctx context.Context) {
	if err := d.camera.Start(ctx); err != nil {
		log.Printf("camera start: %v", err)
		d.logger.Warn("camera/failed", "camera unavailable at boot", map[string]any{"error": err.Error()})
	}
	go d.sync.FlushOfflineQueue(context.Background())
	d.Dispatch(fsm.Event{Type: fsm.EventContinue})
}

func (d *Driver) onResumePrompt(ctx context.Context) {
	drafts, err := d.mgr.ListDrafts()
	if err != nil {
		log.Printf("list drafts: %v", err)
	}
	if len(drafts) == 0 {
		d.Dispatch(fsm.Event{Type: fsm.EventNoResume})
		return
	}
	orderNo, ok := d.prompter.ConfirmResume(ctx, drafts)
	if !ok || ctx.Err() != nil {
		d.Dispatch(fsm.Event{Type: fsm.EventNoResume})
		return
	}
	snap := d.mgr.LoadFromStorage(orderNo)
	if snap == nil {
		d.logger.Warn("resume/missing", fmt.Sprintf("draft %s vanished before resume", orderNo), nil)
		d.Dispatch(fsm.Event{Type: fsm.EventNoResume})
		return
	}
	d.Dispatch(fsm.Event{
		Type:     fsm.EventResumeAccepted,
		OrderNo:  snap.OrderNo,
		Order:    snap.Order,
		Resuming: true,
	})
}

func (d *Driver) onWaitingScan(ctx context.Context) {
	code, err := scan.Race(ctx,
		scan.NewChannelSource("wedge", d.wedgeCodes),
		scan.NewChannelSource("manual", d.manualCodes),
	)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		d.Dispatch(fsm.Event{Type: fsm.EventScanFail, Msg: err.Error()})
		return
	}

	if !d.barcodeRE.MatchString(code.Value) {
		d.Dispatch(fsm.Event{
			Type: fsm.EventScanFail,
			Msg:  fmt.Sprintf("invalid order number %q", code.Value),
		})
		return
	}
	d.logger.BarcodeScanned(code.Value)
	d.logger.Log("scan/source", fmt.Sprintf("order number via %s", code.Source), nil)

	so, err := d.api.FetchSalesOrder(ctx, code.Value)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		msg := fmt.Sprintf("lookup for %s failed: %v", code.Value, err)
		if errors.Is(err, api.ErrOrderNotFound) {
			msg = fmt.Sprintf("order %s not found", code.Value)
		}
		d.Dispatch(fsm.Event{Type: fsm.EventScanFail, Msg: msg})
		return
	}
	d.Dispatch(fsm.Event{Type: fsm.EventScanOK, OrderNo: code.Value, Order: so})
}

func (d *Driver) onLoading(ctx context.Context, fctx fsm.Context) {
	if !fctx.Resuming {
		// Read-only preflight; a failed check never blocks the session.
		customer := ""
		if fctx.Order != nil {
			customer = fctx.Order.Client
		}
		info, err := d.api.CheckFolder(ctx, customer, fctx.OrderNo)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("folder preflight %s: %v", fctx.OrderNo, err)
		} else if info.HasPhotos {
			summary := syncer.BuildFolderSummary(info)
			if !d.prompter.ConfirmAppend(ctx, summary) {
				d.Dispatch(fsm.Event{Type: fsm.EventNoAppend})
				return
			}
			d.logger.Log("scan/append", fmt.Sprintf("appending to %d existing photos", info.PhotoCount), nil)
		}
		d.mgr.Init(fctx.OrderNo, fctx.Order)
	}
	d.preloadChecklists(fctx.Order)
	d.Dispatch(fsm.Event{Type: fsm.EventContinue})
}

// preloadChecklists warms the template cache for every family on the order.
// Partial failures degrade to whatever loaded.
func (d *Driver) preloadChecklists(so *api.SalesOrder) {
	if so == nil {
		return
	}
	seen := map[string]bool{}
	for _, it := range so.Items {
		if seen[it.Family] {
			continue
		}
		seen[it.Family] = true
		if _, err := d.checklists.LoadSections(it.Family); err != nil {
			d.logger.Warn("checklist/partial", err.Error(), map[string]any{"family": it.Family})
		}
	}
}

func (d *Driver) onUploading(ctx context.Context) {
	res, err := d.mgr.UploadSession(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		d.Dispatch(fsm.Event{Type: fsm.EventUploadFail, Msg: err.Error()})
		return
	}
	d.logger.UploadCompleted(res.OrderNo, res.TotalPhotos)
	d.mgr.EndSession()
	d.Dispatch(fsm.Event{Type: fsm.EventUploadOK})
}

// onError logs by severity, shows the message, and auto-acknowledges. The
// presentation layer may linger on the message; the controller does not.
func (d *Driver) onError(ctx context.Context, fctx fsm.Context) {
	data := map[string]any{"source": string(fctx.Source)}
	if fctx.Warn {
		d.logger.Warn("controller/warn", fctx.Msg, data)
	} else {
		d.logger.Error("controller/error", fctx.Msg, data)
	}
	d.prompter.ShowError(ctx, fctx.Msg, fctx.Warn)
	d.Dispatch(fsm.Event{Type: fsm.EventAck})
}
