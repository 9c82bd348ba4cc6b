// Package syncer moves finished session data to the upstream services: the
// sequential photo upload with its piggy-backed checklist, and the session
// log payload with an offline queue behind it.
package syncer

import (
	"context"
	"fmt"
	"log"
	"net"
	"sort"
	"time"

	"qckiosk/api"
	"qckiosk/session"
	"qckiosk/store"
)

// ProgressFunc receives upload progress: photos done, total, and a short
// status line suitable for display.
type ProgressFunc func(done, total int, text string)

// Syncer implements session.Syncer against the real API client and the
// local store.
type Syncer struct {
	api        *api.Client
	db         *store.DB
	deviceID   string
	appVersion string

	// Progress is called during UploadSession; nil disables reporting.
	Progress ProgressFunc
	// Online reports upstream reachability; used to short-circuit the
	// offline log queue. Defaults to a TCP dial probe.
	Online func() bool
}

// New creates a syncer. probeAddr is the host:port dialed by the default
// online probe, typically the log collector's address.
func New(apiClient *api.Client, db *store.DB, deviceID, appVersion, probeAddr string) *Syncer {
	s := &Syncer{
		api:        apiClient,
		db:         db,
		deviceID:   deviceID,
		appVersion: appVersion,
	}
	s.Online = func() bool { return dialProbe(probeAddr) }
	return s
}

func dialProbe(addr string) bool {
	if addr == "" {
		return true
	}
	conn, err := net.DialTimeout("tcp", addr, 3*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// uploadUnit is one photo in the ordered upload manifest.
type uploadUnit struct {
	photo session.Photo
	code  string
}

// UploadSession uploads every photo in the session strictly in order of
// (timestamp, itemIndex). The checklist rides only on the first call; the
// folder handle from the first response threads through the rest. Any step
// failing aborts the whole upload with no partial-success bookkeeping: the
// operator retries the session as a unit.
func (s *Syncer) UploadSession(ctx context.Context, snap *session.Snapshot) (*session.UploadResult, error) {
	var manifest []uploadUnit
	for _, it := range snap.Items {
		for _, p := range it.Photos {
			manifest = append(manifest, uploadUnit{photo: p, code: it.Meta.Code})
		}
	}
	sort.SliceStable(manifest, func(i, j int) bool {
		a, b := manifest[i].photo, manifest[j].photo
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		return a.ItemIndex < b.ItemIndex
	})

	clientName := ""
	if snap.Order != nil {
		clientName = snap.Order.Client
	}
	result := &session.UploadResult{
		OrderNo:     snap.OrderNo,
		Client:      clientName,
		TotalPhotos: len(manifest),
	}
	if len(manifest) == 0 {
		// Nothing to send; the checklist only ever travels with a photo.
		return result, nil
	}

	checklist, err := buildChecklist(snap)
	if err != nil {
		return nil, fmt.Errorf("build checklist: %w", err)
	}

	folderID := ""
	for i, u := range manifest {
		rec, err := s.db.GetPhoto(u.photo.ID)
		if err != nil {
			return nil, fmt.Errorf("read blob %s: %w", u.photo.ID, err)
		}
		if rec == nil {
			return nil, fmt.Errorf("blob %s missing from store", u.photo.ID)
		}

		up := api.PhotoUpload{
			OrderNo:  snap.OrderNo,
			Client:   clientName,
			Blob:     rec.Blob,
			Filename: u.photo.ID + extForMime(u.photo.Mime),
			Mime:     u.photo.Mime,
			FolderID: folderID,
			Signal:   uploadSignal(i, len(manifest)),
		}
		if i == 0 {
			up.Checklist = checklist
		}

		res, err := s.api.UploadPhoto(ctx, up)
		if err != nil {
			return nil, fmt.Errorf("upload photo %d/%d: %w", i+1, len(manifest), err)
		}
		if res.FolderID != "" {
			folderID = res.FolderID
		}
		s.report(i+1, len(manifest), fmt.Sprintf("Uploading photo %d of %d", i+1, len(manifest)))
	}
	return result, nil
}

// uploadSignal marks the stream boundaries for the backend. A single photo
// carries only "first"; the backend closes the stream on any terminal call.
func uploadSignal(i, total int) string {
	switch {
	case i == 0:
		return "first"
	case i == total-1:
		return "eof"
	default:
		return ""
	}
}

func (s *Syncer) report(done, total int, text string) {
	if s.Progress != nil {
		s.Progress(done, total, text)
	}
}

func extForMime(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

// UploadLogs posts the session's drained logs, falling back to the durable
// offline queue when the kiosk is offline or the collector refuses. A queued
// payload is never an error; delivery is eventually handled by the drainer.
func (s *Syncer) UploadLogs(ctx context.Context, snap *session.Snapshot, logs []session.LogEntry) error {
	if len(logs) == 0 {
		return nil
	}
	payload, err := BuildLogPayload(snap, logs, s.deviceID, s.appVersion)
	if err != nil {
		return fmt.Errorf("build log payload: %w", err)
	}

	if !s.Online() {
		return s.enqueue(payload)
	}
	if err := s.api.UploadLogs(ctx, payload); err != nil {
		log.Printf("log upload failed, queuing: %v", err)
		return s.enqueue(payload)
	}
	return nil
}

func (s *Syncer) enqueue(payload []byte) error {
	if _, err := s.db.EnqueueOfflineLog(payload); err != nil {
		return fmt.Errorf("queue offline log: %w", err)
	}
	return nil
}

// PendingLogs returns the offline queue depth.
func (s *Syncer) PendingLogs() (int64, error) {
	return s.db.CountOfflineLogs()
}

var _ session.Syncer = (*Syncer)(nil)
