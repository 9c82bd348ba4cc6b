// Package session owns the in-memory QC session snapshot and mediates all
// reads and writes of its persisted form: the snapshot document and draft
// index in the store, photo blobs in the blob store.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"qckiosk/api"
	"qckiosk/store"

	"github.com/google/uuid"
)

var (
	// ErrNoActiveSession is returned by mutations before Init.
	ErrNoActiveSession = errors.New("no active session")
	// ErrNoItemSelected is returned when no item is the mutation target.
	ErrNoItemSelected = errors.New("no item selected")
	// ErrBadItemIndex is returned for an out-of-range item index.
	ErrBadItemIndex = errors.New("bad item index")
)

// Syncer uploads a serialized snapshot and its drained logs. Implemented by
// the syncer package; the session model only orchestrates.
type Syncer interface {
	UploadSession(ctx context.Context, snap *Snapshot) (*UploadResult, error)
	UploadLogs(ctx context.Context, snap *Snapshot, logs []LogEntry) error
}

// Manager is the sole authority over the session snapshot. One instance per
// kiosk; all other components receive serialized copies, never the live
// state.
type Manager struct {
	mu      sync.Mutex
	db      *store.DB
	emitter EventEmitter
	sync    Syncer
	quota   int64

	state       *Snapshot
	currentItem int
	logBuffer   []LogEntry

	coalescer *Coalescer
}

// NewManager creates a session manager. debounce is the snapshot persist
// quiet period; quota is the advisory storage budget reported by Stats.
func NewManager(db *store.DB, emitter EventEmitter, sync Syncer, debounce time.Duration, quota int64) *Manager {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	m := &Manager{
		db:      db,
		emitter: emitter,
		sync:    sync,
		quota:   quota,
	}
	m.coalescer = NewCoalescer(debounce, m.persistNow)
	return m
}

// Init creates a fresh snapshot for an order, evicting any other draft per
// the single-draft invariant, and persists it synchronously.
func (m *Manager) Init(orderNo string, so *api.SalesOrder) *Snapshot {
	m.mu.Lock()
	m.enforceSingleDraftLocked(orderNo)
	now := nowMillis()
	logs := m.logBuffer
	if logs == nil {
		logs = []LogEntry{}
	}
	m.logBuffer = nil
	m.state = &Snapshot{
		Version:   SnapshotVersion,
		OrderNo:   orderNo,
		Order:     so,
		Items:     itemsFromOrder(so),
		Logs:      logs,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.currentItem = 0
	m.persistLocked()
	snap := m.serializeLocked()
	m.mu.Unlock()

	m.emitter.EmitSessionInit(orderNo)
	return snap
}

// LoadFromStorage rehydrates a draft. Returns nil when the draft is absent
// or corrupt; malformed JSON is treated as "no draft", never an error. Log
// entries buffered before the session existed are merged in, and any other
// drafts on disk are evicted, same as Init.
func (m *Manager) LoadFromStorage(orderNo string) *Snapshot {
	m.mu.Lock()
	body, err := m.db.GetSnapshot(orderNo)
	if err != nil || body == nil {
		m.mu.Unlock()
		return nil
	}
	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		m.mu.Unlock()
		return nil
	}
	snap.Logs = append(snap.Logs, m.logBuffer...)
	m.logBuffer = nil
	m.state = &snap
	m.currentItem = 0
	m.enforceSingleDraftLocked(snap.OrderNo)
	out := m.serializeLocked()
	m.mu.Unlock()

	m.emitter.EmitSessionLoaded(orderNo)
	return out
}

// ListDrafts returns the draft index, most recently updated first.
func (m *Manager) ListDrafts() ([]store.DraftEntry, error) {
	return m.db.ListDrafts()
}

// RemoveFromStorage deletes an order's persisted snapshot, draft-index entry
// and blobs. Blob cleanup is best-effort.
func (m *Manager) RemoveFromStorage(orderNo string) {
	if err := m.db.DeleteSnapshot(orderNo); err != nil {
		log.Printf("delete snapshot %s: %v", orderNo, err)
	}
	if _, err := m.db.DeletePhotosByOrder(orderNo); err != nil {
		log.Printf("purge blobs for %s: %v", orderNo, err)
	}
	m.emitter.EmitSessionRemoved(orderNo)
}

// SetCurrentItem selects the implicit target of item-scoped mutations.
func (m *Manager) SetCurrentItem(idx int) error {
	m.mu.Lock()
	if m.state == nil {
		m.mu.Unlock()
		return ErrNoActiveSession
	}
	if idx < 0 || idx >= len(m.state.Items) {
		m.mu.Unlock()
		return ErrBadItemIndex
	}
	m.currentItem = idx
	orderNo := m.state.OrderNo
	m.mu.Unlock()

	m.emitter.EmitItemSelected(orderNo, idx)
	return nil
}

// CurrentItem returns the selected item index.
func (m *Manager) CurrentItem() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentItem
}

// SavePhoto persists the full-resolution blob first, then appends the photo
// record to the current item. The blob write is never debounced; a photo is
// not considered saved until its blob is durable.
func (m *Manager) SavePhoto(blob []byte, preview, mime string) (Photo, error) {
	m.mu.Lock()
	if m.state == nil {
		m.mu.Unlock()
		return Photo{}, ErrNoActiveSession
	}
	idx := m.currentItem
	if idx < 0 || idx >= len(m.state.Items) {
		m.mu.Unlock()
		return Photo{}, ErrNoItemSelected
	}
	item := &m.state.Items[idx]
	if mime == "" {
		mime = "image/jpeg"
	}
	ts := nowMillis()
	id := photoID(item.Meta.Code)

	if err := m.db.SavePhoto(store.PhotoRecord{
		ID:        id,
		OrderNo:   m.state.OrderNo,
		ItemIndex: idx,
		Blob:      blob,
		Mime:      mime,
		Timestamp: ts,
	}); err != nil {
		m.mu.Unlock()
		return Photo{}, fmt.Errorf("save photo blob: %w", err)
	}

	photo := Photo{ID: id, Preview: preview, Timestamp: ts, ItemIndex: idx, Mime: mime}
	item.Photos = append(item.Photos, photo)
	total := len(item.Photos)
	m.state.UpdatedAt = nowMillis()
	m.coalescer.Trigger()
	m.mu.Unlock()

	m.emitter.EmitPhotoAdded(idx, total)
	return photo, nil
}

// RemovePhoto removes a photo from the current item and its blob record.
// A missing blob is logged but does not fail the in-memory removal.
func (m *Manager) RemovePhoto(photoID string) bool {
	m.mu.Lock()
	if m.state == nil {
		m.mu.Unlock()
		return false
	}
	idx := m.currentItem
	if idx < 0 || idx >= len(m.state.Items) {
		m.mu.Unlock()
		return false
	}
	item := &m.state.Items[idx]
	pos := -1
	for i, p := range item.Photos {
		if p.ID == photoID {
			pos = i
			break
		}
	}
	if pos < 0 {
		m.mu.Unlock()
		return false
	}
	item.Photos = append(item.Photos[:pos], item.Photos[pos+1:]...)
	remaining := len(item.Photos)
	if err := m.db.DeletePhoto(photoID); err != nil {
		log.Printf("delete blob %s: %v", photoID, err)
	}
	m.state.UpdatedAt = nowMillis()
	m.coalescer.Trigger()
	m.mu.Unlock()

	m.emitter.EmitPhotoRemoved(idx, remaining)
	return true
}

// GetPhotos returns a copy of an item's photo records.
func (m *Manager) GetPhotos(itemIndex int) []Photo {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil || itemIndex < 0 || itemIndex >= len(m.state.Items) {
		return nil
	}
	photos := make([]Photo, len(m.state.Items[itemIndex].Photos))
	copy(photos, m.state.Items[itemIndex].Photos)
	return photos
}

// UpdateCheckState sets one tri-state check. Pass and fail are stored; any
// other value clears the key. Invalid targets are a silent no-op.
func (m *Manager) UpdateCheckState(itemIndex int, checkID string, state CheckState) {
	if checkID == "" {
		return
	}
	m.UpdateChecklist(itemIndex, map[string]CheckState{checkID: state})
}

// UpdateChecklist applies a tri-state patch to an item's checks.
func (m *Manager) UpdateChecklist(itemIndex int, patch map[string]CheckState) {
	m.mu.Lock()
	if m.state == nil || len(patch) == 0 || itemIndex < 0 || itemIndex >= len(m.state.Items) {
		m.mu.Unlock()
		return
	}
	item := &m.state.Items[itemIndex]
	if item.Checks == nil {
		item.Checks = map[string]CheckState{}
	}
	for k, v := range patch {
		if v.Valid() {
			item.Checks[k] = v
		} else {
			delete(item.Checks, k)
		}
	}
	orderNo := m.state.OrderNo
	m.state.UpdatedAt = nowMillis()
	m.coalescer.Trigger()
	m.mu.Unlock()

	m.emitter.EmitChecksUpdated(orderNo, itemIndex, patch)
}

// UpdateComment trims the text and stores it; text empty after trimming
// deletes the key.
func (m *Manager) UpdateComment(itemIndex int, sectionID, text string) {
	m.mu.Lock()
	if m.state == nil || sectionID == "" || itemIndex < 0 || itemIndex >= len(m.state.Items) {
		m.mu.Unlock()
		return
	}
	item := &m.state.Items[itemIndex]
	if item.Comments == nil {
		item.Comments = map[string]string{}
	}
	v := strings.TrimSpace(text)
	if v != "" {
		item.Comments[sectionID] = v
	} else {
		delete(item.Comments, sectionID)
	}
	orderNo := m.state.OrderNo
	m.state.UpdatedAt = nowMillis()
	m.coalescer.Trigger()
	m.mu.Unlock()

	m.emitter.EmitCommentsUpdated(orderNo, itemIndex, sectionID)
}

// GetCheckState returns the stored state for a check, or "" when unset.
func (m *Manager) GetCheckState(itemIndex int, checkID string) CheckState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil || itemIndex < 0 || itemIndex >= len(m.state.Items) {
		return ""
	}
	v := m.state.Items[itemIndex].Checks[checkID]
	if !v.Valid() {
		return ""
	}
	return v
}

// GetChecklist returns a copy of an item's tri-state map; only keys with a
// state are present.
func (m *Manager) GetChecklist(itemIndex int) map[string]CheckState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]CheckState{}
	if m.state == nil || itemIndex < 0 || itemIndex >= len(m.state.Items) {
		return out
	}
	for k, v := range m.state.Items[itemIndex].Checks {
		out[k] = v
	}
	return out
}

// GetComments returns a copy of an item's comments.
func (m *Manager) GetComments(itemIndex int) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	if m.state == nil || itemIndex < 0 || itemIndex >= len(m.state.Items) {
		return out
	}
	for k, v := range m.state.Items[itemIndex].Comments {
		out[k] = v
	}
	return out
}

// AppendLog adds a structured entry to the session logs. Entries written
// before a session exists are buffered and merged at Init/Load.
func (m *Manager) AppendLog(entry LogEntry) {
	m.mu.Lock()
	entry.TS = nowMillis()
	if m.state == nil {
		m.logBuffer = append(m.logBuffer, entry)
		m.mu.Unlock()
		return
	}
	m.state.Logs = append(m.state.Logs, entry)
	m.state.UpdatedAt = nowMillis()
	m.coalescer.Trigger()
	m.mu.Unlock()

	m.emitter.EmitLogsChanged()
}

// GetLogs returns a copy of the session logs.
func (m *Manager) GetLogs() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil
	}
	out := make([]LogEntry, len(m.state.Logs))
	copy(out, m.state.Logs)
	return out
}

// DrainLogs empties the session logs atomically and returns them.
func (m *Manager) DrainLogs() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil
	}
	out := m.state.Logs
	m.state.Logs = []LogEntry{}
	m.state.UpdatedAt = nowMillis()
	m.coalescer.Trigger()
	return out
}

// UploadSession serializes the session, hands it to the syncer, then drains
// and uploads the logs. Errors from the syncer propagate to the caller; the
// controller decides what to do with them.
func (m *Manager) UploadSession(ctx context.Context) (*UploadResult, error) {
	counts := m.Counts()
	m.AppendLog(LogEntry{
		Level: "info", Time: time.Now().UTC().Format(time.RFC3339),
		Event:   "upload/started",
		Message: fmt.Sprintf("[UPLOAD_SESSION] photos: %d • checks: %d • items: %d", counts.Photos, counts.Checks, counts.Items),
	})

	snap := m.Serialize()
	if snap == nil {
		return nil, ErrNoActiveSession
	}

	res, err := m.sync.UploadSession(ctx, snap)
	if err != nil {
		return nil, err
	}

	logs := m.DrainLogs()
	if err := m.sync.UploadLogs(ctx, snap, logs); err != nil {
		log.Printf("upload session logs: %v", err)
	}
	return res, nil
}

// EndSession tears the session down: persisted snapshot, draft-index entry
// and blobs are deleted and in-memory state is cleared. Irreversible.
func (m *Manager) EndSession() {
	m.mu.Lock()
	orderNo := ""
	if m.state != nil {
		orderNo = m.state.OrderNo
	}
	m.state = nil
	m.currentItem = 0
	m.coalescer.Stop()
	m.mu.Unlock()

	if orderNo != "" {
		m.RemoveFromStorage(orderNo)
	}
}

// Detach clears the in-memory session without touching its persisted draft,
// flushing any pending write first. The draft remains resumable.
func (m *Manager) Detach() {
	m.coalescer.Flush()
	m.mu.Lock()
	m.state = nil
	m.currentItem = 0
	m.mu.Unlock()
}

// Serialize returns a deep, detached copy of the current snapshot, or nil
// when no session is active.
func (m *Manager) Serialize() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.serializeLocked()
}

// Counts returns the derived session aggregates.
func (m *Manager) Counts() Counts {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return Counts{}
	}
	c := Counts{Items: len(m.state.Items)}
	for _, it := range m.state.Items {
		c.Photos += len(it.Photos)
		c.Checks += len(it.Checks)
	}
	return c
}

// HasAnyData reports whether the operator has produced at least one photo,
// check result or non-empty comment; it gates the upload action.
func (m *Manager) HasAnyData() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return false
	}
	for _, it := range m.state.Items {
		if len(it.Photos) > 0 || len(it.Checks) > 0 {
			return true
		}
		for _, v := range it.Comments {
			if v != "" {
				return true
			}
		}
	}
	return false
}

// OrderNo returns the active order number, or "" when no session exists.
func (m *Manager) OrderNo() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return ""
	}
	return m.state.OrderNo
}

// Stats returns blob store totals plus device storage figures.
func (m *Manager) Stats() (store.PhotoStats, error) {
	return m.db.Stats(m.quota)
}

// Flush forces any pending debounced persist to complete synchronously.
func (m *Manager) Flush() {
	m.coalescer.Flush()
}

// ---- internals ---------------------------------------------------------

func (m *Manager) serializeLocked() *Snapshot {
	if m.state == nil {
		return nil
	}
	raw, err := json.Marshal(m.state)
	if err != nil {
		log.Printf("serialize session: %v", err)
		return nil
	}
	var cp Snapshot
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil
	}
	return &cp
}

// persistNow is the coalescer target; callers must not hold m.mu.
func (m *Manager) persistNow() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persistLocked()
}

// persistLocked writes the snapshot and draft index. A failed write never
// rolls back in-memory state: the operator's work stays live and the next
// successful persist catches up.
func (m *Manager) persistLocked() {
	if m.state == nil {
		return
	}
	body, err := json.Marshal(m.state)
	if err != nil {
		log.Printf("marshal session %s: %v", m.state.OrderNo, err)
		return
	}
	if err := m.db.SaveSnapshot(m.state.OrderNo, body, m.state.CreatedAt, m.state.UpdatedAt); err != nil {
		log.Printf("persist session %s: %v", m.state.OrderNo, err)
		m.emitter.EmitStorageAlert("kiosk storage is full or failing; latest changes are not yet saved")
	}
}

// enforceSingleDraftLocked deletes every other order's snapshot and index
// entry synchronously, and purges their blobs in the background.
func (m *Manager) enforceSingleDraftLocked(keep string) {
	if keep == "" {
		return
	}
	drafts, err := m.db.ListDrafts()
	if err != nil {
		log.Printf("list drafts: %v", err)
		return
	}
	var victims []string
	for _, d := range drafts {
		if d.OrderNo == keep {
			continue
		}
		if err := m.db.DeleteSnapshot(d.OrderNo); err != nil {
			log.Printf("evict draft %s: %v", d.OrderNo, err)
		}
		victims = append(victims, d.OrderNo)
	}
	if len(victims) == 0 {
		return
	}
	go func() {
		for _, orderNo := range victims {
			if _, err := m.db.DeletePhotosByOrder(orderNo); err != nil {
				log.Printf("purge blobs for evicted draft %s: %v", orderNo, err)
			}
		}
	}()
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// photoID derives a globally unique photo id from the item code, a
// period-separated date, and a random suffix. The id doubles as the join
// key into the blob store and the uploaded filename stem.
func photoID(code string) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:4]
	return fmt.Sprintf("%s_%s_%s", code, time.Now().Format("2006.01.02"), suffix)
}
