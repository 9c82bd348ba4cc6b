package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"qckiosk/api"
	"qckiosk/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testOrder() *api.SalesOrder {
	return &api.SalesOrder{
		Client: "CUST_J",
		Items: []api.OrderItem{
			{Code: "A1", Family: "SP", Description: "spring"},
			{Code: "B2", Family: "PUR", Description: "blower"},
		},
	}
}

func newTestManager(t *testing.T, db *store.DB) *Manager {
	return NewManager(db, nil, nil, 5*time.Millisecond, 0)
}

func TestInitBuildsItemsFromOrder(t *testing.T) {
	m := newTestManager(t, testDB(t))
	snap := m.Init("12345678", testOrder())
	if snap.OrderNo != "12345678" || len(snap.Items) != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Items[0].Meta.Code != "A1" || snap.Items[1].Meta.Family != "PUR" {
		t.Fatalf("item meta = %+v", snap.Items)
	}
	if snap.CreatedAt == 0 || snap.Version != SnapshotVersion {
		t.Fatalf("header fields = %+v", snap)
	}
}

func TestSingleDraftInvariant(t *testing.T) {
	db := testDB(t)
	m := newTestManager(t, db)

	m.Init("11111111", testOrder())
	m.Init("22222222", testOrder())

	drafts, err := db.ListDrafts()
	if err != nil {
		t.Fatal(err)
	}
	if len(drafts) != 1 || drafts[0].OrderNo != "22222222" {
		t.Fatalf("drafts = %+v", drafts)
	}
	if body, _ := db.GetSnapshot("11111111"); body != nil {
		t.Fatal("evicted snapshot still present")
	}

	// Loading an existing draft must also evict others.
	m2 := newTestManager(t, db)
	m2.Init("33333333", testOrder())
	if m2.LoadFromStorage("33333333") == nil {
		t.Fatal("load failed")
	}
	drafts, _ = db.ListDrafts()
	if len(drafts) != 1 || drafts[0].OrderNo != "33333333" {
		t.Fatalf("drafts after load = %+v", drafts)
	}
}

func TestTriStateChecks(t *testing.T) {
	m := newTestManager(t, testDB(t))
	m.Init("12345678", testOrder())

	m.UpdateCheckState(0, "welds", CheckPass)
	if got := m.GetCheckState(0, "welds"); got != CheckPass {
		t.Fatalf("after pass: %q", got)
	}
	m.UpdateCheckState(0, "welds", CheckFail)
	if got := m.GetCheckState(0, "welds"); got != CheckFail {
		t.Fatalf("after fail: %q", got)
	}

	// Any non-valid value clears the key entirely.
	m.UpdateCheckState(0, "welds", "")
	if got := m.GetCheckState(0, "welds"); got != "" {
		t.Fatalf("after clear: %q", got)
	}
	if _, exists := m.GetChecklist(0)["welds"]; exists {
		t.Fatal("cleared key still stored")
	}

	m.UpdateCheckState(0, "welds", CheckPass)
	m.UpdateCheckState(0, "welds", "maybe")
	if _, exists := m.GetChecklist(0)["welds"]; exists {
		t.Fatal("arbitrary value should behave like clear")
	}

	// Silent no-ops for bad targets.
	m.UpdateCheckState(9, "welds", CheckPass)
	m.UpdateCheckState(0, "", CheckPass)
	if n := len(m.GetChecklist(0)); n != 0 {
		t.Fatalf("checks = %d", n)
	}
}

func TestCommentTrimAndDelete(t *testing.T) {
	m := newTestManager(t, testDB(t))
	m.Init("12345678", testOrder())

	m.UpdateComment(0, "frame", "  small scratch  ")
	if got := m.GetComments(0)["frame"]; got != "small scratch" {
		t.Fatalf("comment = %q", got)
	}
	m.UpdateComment(0, "frame", "   ")
	if _, exists := m.GetComments(0)["frame"]; exists {
		t.Fatal("whitespace comment should delete the key")
	}
}

func TestPhotoBlobConsistency(t *testing.T) {
	db := testDB(t)
	m := newTestManager(t, db)
	m.Init("12345678", testOrder())
	if err := m.SetCurrentItem(1); err != nil {
		t.Fatal(err)
	}

	photo, err := m.SavePhoto([]byte("jpegbytes"), "data:image/jpeg;base64,x", "image/jpeg")
	if err != nil {
		t.Fatal(err)
	}
	if photo.ItemIndex != 1 || photo.ID == "" {
		t.Fatalf("photo = %+v", photo)
	}

	rec, err := db.GetPhoto(photo.ID)
	if err != nil || rec == nil {
		t.Fatalf("blob not durable: %v %v", rec, err)
	}
	if string(rec.Blob) != "jpegbytes" || rec.OrderNo != "12345678" || rec.ItemIndex != 1 {
		t.Fatalf("blob record = %+v", rec)
	}

	if !m.RemovePhoto(photo.ID) {
		t.Fatal("remove failed")
	}
	if rec, _ := db.GetPhoto(photo.ID); rec != nil {
		t.Fatal("blob survived removal")
	}
	if n := len(m.GetPhotos(1)); n != 0 {
		t.Fatalf("photos = %d", n)
	}
}

func TestRemovePhotoOnlyOnCurrentItem(t *testing.T) {
	m := newTestManager(t, testDB(t))
	m.Init("12345678", testOrder())

	photo, err := m.SavePhoto([]byte("x"), "", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.SetCurrentItem(1); err != nil {
		t.Fatal(err)
	}
	if m.RemovePhoto(photo.ID) {
		t.Fatal("removed a photo belonging to another item")
	}
}

func TestCountsAndHasAnyData(t *testing.T) {
	m := newTestManager(t, testDB(t))
	m.Init("12345678", testOrder())

	if m.HasAnyData() {
		t.Fatal("fresh session should have no data")
	}
	m.UpdateCheckState(0, "c1", CheckPass)
	if !m.HasAnyData() {
		t.Fatal("check result should count as data")
	}
	if _, err := m.SavePhoto([]byte("x"), "", ""); err != nil {
		t.Fatal(err)
	}
	c := m.Counts()
	if c.Items != 2 || c.Photos != 1 || c.Checks != 1 {
		t.Fatalf("counts = %+v", c)
	}
}

func TestFlushThenReload(t *testing.T) {
	db := testDB(t)
	m := newTestManager(t, db)
	m.Init("12345678", testOrder())
	m.UpdateCheckState(0, "c1", CheckFail)
	m.UpdateComment(1, "s1", "note")
	m.Flush()
	m.Detach()

	m2 := newTestManager(t, db)
	snap := m2.LoadFromStorage("12345678")
	if snap == nil {
		t.Fatal("reload failed")
	}
	if snap.Items[0].Checks["c1"] != CheckFail || snap.Items[1].Comments["s1"] != "note" {
		t.Fatalf("reloaded state = %+v", snap.Items)
	}
}

func TestLoadCorruptSnapshotIsNil(t *testing.T) {
	db := testDB(t)
	if err := db.SaveSnapshot("12345678", []byte("{not json"), 1, 1); err != nil {
		t.Fatal(err)
	}
	m := newTestManager(t, db)
	if m.LoadFromStorage("12345678") != nil {
		t.Fatal("corrupt snapshot should load as nil")
	}
	if m.LoadFromStorage("99999999") != nil {
		t.Fatal("absent snapshot should load as nil")
	}
}

func TestLogBufferMergesIntoNextSession(t *testing.T) {
	m := newTestManager(t, testDB(t))
	m.AppendLog(LogEntry{Level: "info", Message: "boot message"})

	snap := m.Init("12345678", testOrder())
	if len(snap.Logs) != 1 || snap.Logs[0].Message != "boot message" {
		t.Fatalf("logs = %+v", snap.Logs)
	}

	m.AppendLog(LogEntry{Level: "info", Message: "in session"})
	drained := m.DrainLogs()
	if len(drained) != 2 {
		t.Fatalf("drained = %d", len(drained))
	}
	if len(m.GetLogs()) != 0 {
		t.Fatal("drain left logs behind")
	}
}

func TestSetCurrentItemBounds(t *testing.T) {
	m := newTestManager(t, testDB(t))
	if err := m.SetCurrentItem(0); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("err = %v", err)
	}
	m.Init("12345678", testOrder())
	if err := m.SetCurrentItem(2); !errors.Is(err, ErrBadItemIndex) {
		t.Fatalf("err = %v", err)
	}
	if err := m.SetCurrentItem(-1); !errors.Is(err, ErrBadItemIndex) {
		t.Fatalf("err = %v", err)
	}
}

func TestSerializeIsDetached(t *testing.T) {
	m := newTestManager(t, testDB(t))
	m.Init("12345678", testOrder())
	m.UpdateCheckState(0, "c1", CheckPass)

	snap := m.Serialize()
	snap.Items[0].Checks["c1"] = CheckFail
	snap.Items[0].Comments["x"] = "mutated copy"

	if m.GetCheckState(0, "c1") != CheckPass {
		t.Fatal("serialized copy shares state with the manager")
	}
	if len(m.GetComments(0)) != 0 {
		t.Fatal("serialized copy shares comment map")
	}
}

type fakeSyncer struct {
	uploaded *Snapshot
	logs     []LogEntry
	err      error
}

func (f *fakeSyncer) UploadSession(ctx context.Context, snap *Snapshot) (*UploadResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.uploaded = snap
	return &UploadResult{OrderNo: snap.OrderNo, TotalPhotos: 0}, nil
}

func (f *fakeSyncer) UploadLogs(ctx context.Context, snap *Snapshot, logs []LogEntry) error {
	f.logs = logs
	return nil
}

func TestUploadSessionDrainsLogs(t *testing.T) {
	db := testDB(t)
	fs := &fakeSyncer{}
	m := NewManager(db, nil, fs, 5*time.Millisecond, 0)
	m.Init("12345678", testOrder())
	m.AppendLog(LogEntry{Level: "info", Message: "work happened"})

	res, err := m.UploadSession(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.OrderNo != "12345678" {
		t.Fatalf("result = %+v", res)
	}
	if fs.uploaded == nil {
		t.Fatal("snapshot never reached the syncer")
	}
	// The drained batch includes the upload/started marker appended first.
	if len(fs.logs) < 2 {
		t.Fatalf("drained logs = %d", len(fs.logs))
	}
	if len(m.GetLogs()) != 0 {
		t.Fatal("logs not drained after upload")
	}
}

func TestUploadSessionFailureKeepsState(t *testing.T) {
	db := testDB(t)
	fs := &fakeSyncer{err: errors.New("http 502")}
	m := NewManager(db, nil, fs, 5*time.Millisecond, 0)
	m.Init("12345678", testOrder())
	m.UpdateCheckState(0, "c1", CheckPass)

	if _, err := m.UploadSession(context.Background()); err == nil {
		t.Fatal("want upload error")
	}
	if m.GetCheckState(0, "c1") != CheckPass {
		t.Fatal("failed upload must not touch session data")
	}
	if len(m.GetLogs()) == 0 {
		t.Fatal("failed upload must not drain logs")
	}
}

func TestEndSessionRemovesEverything(t *testing.T) {
	db := testDB(t)
	m := newTestManager(t, db)
	m.Init("12345678", testOrder())
	photo, err := m.SavePhoto([]byte("x"), "", "")
	if err != nil {
		t.Fatal(err)
	}
	m.Flush()

	m.EndSession()
	if m.Serialize() != nil {
		t.Fatal("state survived EndSession")
	}
	if body, _ := db.GetSnapshot("12345678"); body != nil {
		t.Fatal("snapshot survived EndSession")
	}
	if rec, _ := db.GetPhoto(photo.ID); rec != nil {
		t.Fatal("blob survived EndSession")
	}
}
