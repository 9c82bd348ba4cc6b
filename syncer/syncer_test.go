package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"qckiosk/api"
	"qckiosk/config"
	"qckiosk/session"
	"qckiosk/store"
)

type uploadCall struct {
	Filename  string
	Signal    string
	FolderID  string
	Checklist string
}

type fakeSharePoint struct {
	calls []uploadCall
	fail  bool
}

func (f *fakeSharePoint) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if f.fail {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		call := uploadCall{
			Signal:    r.FormValue("fileSignal"),
			FolderID:  r.FormValue("folderId"),
			Checklist: r.FormValue("checklist"),
		}
		if fhs := r.MultipartForm.File["files"]; len(fhs) == 1 {
			call.Filename = fhs[0].Filename
		}
		f.calls = append(f.calls, call)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"ok":true,"folderId":"F-77"}`)
	}
}

func newTestSyncer(t *testing.T, handler http.Handler) (*Syncer, *store.DB) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.APIConfig{
		GeniusURL:     srv.URL + "/sales-order/",
		SharePointURL: srv.URL + "/sharepoint",
		LogURL:        srv.URL + "/qc-logs",
		LookupTimeout: 2 * time.Second,
		CheckTimeout:  2 * time.Second,
		UploadTimeout: 2 * time.Second,
		LogTimeout:    2 * time.Second,
		LookupRetries: 1,
		RetryBackoff:  time.Millisecond,
	}
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	s := New(api.NewClient(cfg), db, "kiosk-test", "test", "")
	s.Online = func() bool { return true }
	return s, db
}

// testSnapshot builds a two-item session whose photo timestamps are
// deliberately out of capture order across items.
func testSnapshot(t *testing.T, db *store.DB) *session.Snapshot {
	t.Helper()
	snap := &session.Snapshot{
		Version:   1,
		OrderNo:   "12345678",
		Order:     &api.SalesOrder{Client: "CUST_J"},
		CreatedAt: 1000,
		Items: []session.Item{
			{
				Meta:   session.ItemMeta{Code: "A1"},
				Photos: []session.Photo{{ID: "pA", Timestamp: 300, ItemIndex: 0, Mime: "image/jpeg"}},
				Checks: map[string]session.CheckState{"welds": session.CheckPass},
			},
			{
				Meta: session.ItemMeta{Code: "B2"},
				Photos: []session.Photo{
					{ID: "pB1", Timestamp: 100, ItemIndex: 1, Mime: "image/jpeg"},
					{ID: "pB2", Timestamp: 200, ItemIndex: 1, Mime: "image/png"},
				},
				Comments: map[string]string{"frame": "scratch"},
			},
		},
	}
	for _, id := range []string{"pA", "pB1", "pB2"} {
		if err := db.SavePhoto(store.PhotoRecord{ID: id, OrderNo: snap.OrderNo, Blob: []byte(id + "-bytes")}); err != nil {
			t.Fatal(err)
		}
	}
	return snap
}

func TestUploadSessionSequencing(t *testing.T) {
	sp := &fakeSharePoint{}
	s, db := newTestSyncer(t, sp.handler())
	snap := testSnapshot(t, db)

	var progress []int
	s.Progress = func(done, total int, text string) { progress = append(progress, done) }

	res, err := s.UploadSession(context.Background(), snap)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalPhotos != 3 || res.Client != "CUST_J" {
		t.Fatalf("result = %+v", res)
	}
	if len(sp.calls) != 3 {
		t.Fatalf("calls = %d", len(sp.calls))
	}

	// Ordered by timestamp regardless of owning item.
	wantFiles := []string{"pB1.jpg", "pB2.png", "pA.jpg"}
	for i, w := range wantFiles {
		if sp.calls[i].Filename != w {
			t.Fatalf("call %d filename = %s, want %s", i, sp.calls[i].Filename, w)
		}
	}

	// Checklist rides only on the first call.
	if sp.calls[0].Checklist == "" || sp.calls[1].Checklist != "" || sp.calls[2].Checklist != "" {
		t.Fatalf("checklist placement: %+v", sp.calls)
	}
	var doc struct {
		Items []struct {
			Code     string            `json:"code"`
			Checks   map[string]string `json:"checks"`
			Comments map[string]string `json:"comments"`
		} `json:"items"`
	}
	if err := json.Unmarshal([]byte(sp.calls[0].Checklist), &doc); err != nil {
		t.Fatal(err)
	}
	if len(doc.Items) != 2 || doc.Items[0].Checks["welds"] != "pass" || doc.Items[1].Comments["frame"] != "scratch" {
		t.Fatalf("checklist doc = %+v", doc)
	}

	// Boundary signals and folder handle threading.
	if sp.calls[0].Signal != "first" || sp.calls[1].Signal != "" || sp.calls[2].Signal != "eof" {
		t.Fatalf("signals: %+v", sp.calls)
	}
	if sp.calls[0].FolderID != "" || sp.calls[1].FolderID != "F-77" || sp.calls[2].FolderID != "F-77" {
		t.Fatalf("folder ids: %+v", sp.calls)
	}

	if len(progress) != 3 || progress[2] != 3 {
		t.Fatalf("progress = %v", progress)
	}
}

func TestUploadSessionSinglePhotoSignal(t *testing.T) {
	sp := &fakeSharePoint{}
	s, db := newTestSyncer(t, sp.handler())
	db.SavePhoto(store.PhotoRecord{ID: "only", OrderNo: "1", Blob: []byte("x")})
	snap := &session.Snapshot{
		OrderNo: "1",
		Items: []session.Item{{
			Meta:   session.ItemMeta{Code: "A"},
			Photos: []session.Photo{{ID: "only", Timestamp: 1}},
		}},
	}

	if _, err := s.UploadSession(context.Background(), snap); err != nil {
		t.Fatal(err)
	}
	// A single photo opens the stream but is never marked eof.
	if len(sp.calls) != 1 || sp.calls[0].Signal != "first" {
		t.Fatalf("calls = %+v", sp.calls)
	}
}

func TestUploadSessionNoPhotosSkipsNetwork(t *testing.T) {
	sp := &fakeSharePoint{}
	s, _ := newTestSyncer(t, sp.handler())
	snap := &session.Snapshot{
		OrderNo: "1",
		Items: []session.Item{{
			Meta:   session.ItemMeta{Code: "A"},
			Checks: map[string]session.CheckState{"c": session.CheckPass},
		}},
	}

	res, err := s.UploadSession(context.Background(), snap)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalPhotos != 0 || len(sp.calls) != 0 {
		t.Fatalf("res = %+v calls = %d", res, len(sp.calls))
	}
}

func TestUploadSessionMissingBlobFails(t *testing.T) {
	sp := &fakeSharePoint{}
	s, _ := newTestSyncer(t, sp.handler())
	snap := &session.Snapshot{
		OrderNo: "1",
		Items: []session.Item{{
			Photos: []session.Photo{{ID: "ghost", Timestamp: 1}},
		}},
	}
	if _, err := s.UploadSession(context.Background(), snap); err == nil {
		t.Fatal("want error for missing blob")
	}
}

func TestUploadSessionAbortsOnFailure(t *testing.T) {
	sp := &fakeSharePoint{fail: true}
	s, db := newTestSyncer(t, sp.handler())
	snap := testSnapshot(t, db)
	if _, err := s.UploadSession(context.Background(), snap); err == nil {
		t.Fatal("want error when upload step fails")
	}
}

func TestUploadLogsQueuesWhenOffline(t *testing.T) {
	s, db := newTestSyncer(t, http.NotFoundHandler())
	s.Online = func() bool { return false }

	snap := &session.Snapshot{OrderNo: "12345678", CreatedAt: 1000}
	logs := []session.LogEntry{{Level: "info", Message: "hello", TS: 2000}}
	if err := s.UploadLogs(context.Background(), snap, logs); err != nil {
		t.Fatal(err)
	}

	queued, err := db.ListOfflineLogs(10)
	if err != nil || len(queued) != 1 {
		t.Fatalf("queued = %d err = %v", len(queued), err)
	}
	var p LogPayload
	if err := json.Unmarshal(queued[0].Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.SessionID != "12345678-1000" || p.OrderID != "12345678" {
		t.Fatalf("payload = %+v", p)
	}
	if len(p.Logs) != 1 || !strings.Contains(p.Logs[0], "[info] hello") {
		t.Fatalf("log lines = %v", p.Logs)
	}
}

func TestUploadLogsQueuesOnServerFailure(t *testing.T) {
	s, db := newTestSyncer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	snap := &session.Snapshot{OrderNo: "1", CreatedAt: 1}
	if err := s.UploadLogs(context.Background(), snap, []session.LogEntry{{Message: "m"}}); err != nil {
		t.Fatal(err)
	}
	if n, _ := db.CountOfflineLogs(); n != 1 {
		t.Fatalf("queue depth = %d", n)
	}
}

func TestFlushOfflineQueueKeepsFailures(t *testing.T) {
	s, db := newTestSyncer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p map[string]any
		json.NewDecoder(r.Body).Decode(&p)
		if p["orderId"] == "bad" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	good, _ := json.Marshal(LogPayload{OrderID: "good"})
	bad, _ := json.Marshal(LogPayload{OrderID: "bad"})
	db.EnqueueOfflineLog(good)
	db.EnqueueOfflineLog(bad)

	s.FlushOfflineQueue(context.Background())

	remaining, err := db.ListOfflineLogs(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 {
		t.Fatalf("remaining = %d", len(remaining))
	}
	var p LogPayload
	json.Unmarshal(remaining[0].Payload, &p)
	if p.OrderID != "bad" || remaining[0].Retries != 1 {
		t.Fatalf("remaining = %+v payload = %+v", remaining[0], p)
	}
}

func TestFlushOfflineQueueNoOpWhileOffline(t *testing.T) {
	called := false
	s, db := newTestSyncer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	s.Online = func() bool { return false }
	db.EnqueueOfflineLog([]byte(`{}`))

	s.FlushOfflineQueue(context.Background())
	if called {
		t.Fatal("flush hit the network while offline")
	}
	if n, _ := db.CountOfflineLogs(); n != 1 {
		t.Fatalf("queue depth = %d", n)
	}
}

func TestBuildFolderSummary(t *testing.T) {
	info := &api.FolderInfo{
		Customer: "CUST_J", OrderNo: "12345678", HasPhotos: true, PhotoCount: 2,
		Files: []api.FolderFile{
			{Name: "z.jpg", ContentType: "image/jpeg"},
			{Name: "a.jpg", ContentType: "image/jpeg"},
			{Name: "notes.txt", ContentType: "text/plain"},
		},
	}
	got := BuildFolderSummary(info)
	if !strings.HasPrefix(got, "Photos already exist for CUST_J.12345678") {
		t.Fatalf("summary = %q", got)
	}
	if !strings.HasSuffix(got, "Append more photos?") {
		t.Fatalf("summary = %q", got)
	}
	if strings.Contains(got, "notes.txt") {
		t.Fatal("non-image file listed")
	}
	if strings.Index(got, "a.jpg") > strings.Index(got, "z.jpg") {
		t.Fatal("files not sorted by name")
	}
}
