package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"qckiosk/api"
	"qckiosk/checklist"
	"qckiosk/config"
	"qckiosk/fsm"
	"qckiosk/session"
	"qckiosk/store"
	"qckiosk/syncer"
)

type testPrompter struct {
	resumeOrder string
	resumeOK    bool
	appendOK    bool
}

func (p *testPrompter) ConfirmResume(ctx context.Context, drafts []store.DraftEntry) (string, bool) {
	return p.resumeOrder, p.resumeOK
}
func (p *testPrompter) ConfirmAppend(ctx context.Context, summary string) bool { return p.appendOK }
func (p *testPrompter) ShowError(ctx context.Context, msg string, warn bool)   {}

type harness struct {
	drv    *Driver
	mgr    *session.Manager
	states chan StateChangedEvent
}

func newHarness(t *testing.T, handler http.Handler, prompter Prompter) *harness {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Defaults()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "test.db")
	cfg.API.GeniusURL = srv.URL + "/genius/"
	cfg.API.SharePointURL = srv.URL + "/sharepoint"
	cfg.API.LogURL = srv.URL + "/qc-logs"
	cfg.API.RetryBackoff = 5 * time.Millisecond
	cfg.PersistDebounce = 5 * time.Millisecond
	cfg.Checklist.TemplateDir = t.TempDir()
	cfg.Checklist.FamilyMap = map[string][]string{}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	bus := NewEventBus()
	states := make(chan StateChangedEvent, 32)
	bus.SubscribeTypes(func(evt Event) {
		states <- evt.Payload.(StateChangedEvent)
	}, EventStateChanged)

	apiClient := api.NewClient(&cfg.API)
	sy := syncer.New(apiClient, db, cfg.DeviceID, "test", "")
	sy.Online = func() bool { return false }
	mgr := session.NewManager(db, &sessionEmitter{bus: bus}, sy, cfg.PersistDebounce, 0)
	logger := session.NewLogger(mgr)

	drv, err := NewDriver(DriverConfig{
		AppConfig:  cfg,
		Manager:    mgr,
		Logger:     logger,
		API:        apiClient,
		Syncer:     sy,
		Checklists: checklist.NewLoader(&cfg.Checklist),
		Prompter:   prompter,
		Bus:        bus,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(drv.Stop)
	return &harness{drv: drv, mgr: mgr, states: states}
}

// waitFor consumes state transitions until the target state is entered.
func (h *harness) waitFor(t *testing.T, target fsm.State) StateChangedEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-h.states:
			if ev.To == string(target) {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s (currently %s)", target, h.drv.Status().State)
		}
	}
}

func orderHandler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/genius/12345678", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"client":"CUST_J","items":[{"code":"A1","family":"SP"},{"code":"B2","family":"SP"}]}`))
	})
	mux.HandleFunc("/genius/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/sharepoint/check", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"has_photos":false,"photo_count":0,"files":[]}`))
	})
	return mux
}

func TestFreshBootReachesWaitingScan(t *testing.T) {
	h := newHarness(t, orderHandler(t), &testPrompter{})
	h.drv.Start()
	h.waitFor(t, fsm.StateWaitingScan)
}

func TestScanToReady(t *testing.T) {
	h := newHarness(t, orderHandler(t), &testPrompter{})
	h.drv.Start()
	h.waitFor(t, fsm.StateWaitingScan)

	h.drv.SubmitScan("12345678")
	h.waitFor(t, fsm.StateLoading)
	h.waitFor(t, fsm.StateReady)

	snap := h.mgr.Serialize()
	if snap == nil {
		t.Fatal("no session after READY")
	}
	if len(snap.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(snap.Items))
	}
	if snap.OrderNo != "12345678" {
		t.Fatalf("orderNo = %s", snap.OrderNo)
	}
}

func TestBadScanRoundTripsThroughError(t *testing.T) {
	h := newHarness(t, orderHandler(t), &testPrompter{})
	h.drv.Start()
	h.waitFor(t, fsm.StateWaitingScan)

	h.drv.SubmitScan("abc")
	ev := h.waitFor(t, fsm.StateError)
	if !ev.Warn {
		t.Fatalf("bad scan should be warn severity: %+v", ev)
	}
	// Auto-ACK routes back to the scan state.
	h.waitFor(t, fsm.StateWaitingScan)
	if h.mgr.Serialize() != nil {
		t.Fatal("no session should exist after a failed scan")
	}
}

func TestUnknownOrderRoundTripsThroughError(t *testing.T) {
	h := newHarness(t, orderHandler(t), &testPrompter{})
	h.drv.Start()
	h.waitFor(t, fsm.StateWaitingScan)

	h.drv.SubmitScan("99999999")
	h.waitFor(t, fsm.StateError)
	h.waitFor(t, fsm.StateWaitingScan)
}

func TestResumeDeclinedGoesToScan(t *testing.T) {
	h := newHarness(t, orderHandler(t), &testPrompter{resumeOK: false})
	// Seed a draft so the resume prompt actually fires.
	h.mgr.Init("12345678", nil)
	h.mgr.Detach()

	h.drv.Start()
	h.waitFor(t, fsm.StateWaitingScan)
}

func TestResumeAcceptedRestoresSession(t *testing.T) {
	h := newHarness(t, orderHandler(t), &testPrompter{resumeOrder: "12345678", resumeOK: true})
	h.mgr.Init("12345678", nil)
	h.mgr.Detach()

	h.drv.Start()
	h.waitFor(t, fsm.StateReady)
	snap := h.mgr.Serialize()
	if snap == nil || snap.OrderNo != "12345678" {
		t.Fatalf("resumed snapshot = %+v", snap)
	}
}
