package session

import "qckiosk/api"

// SnapshotVersion tags persisted drafts for forward compatibility.
const SnapshotVersion = 1

// Snapshot is the complete state of one order's QC session. It is the single
// source of truth while the session is active and the unit of persistence.
type Snapshot struct {
	Version   int             `json:"version"`
	OrderNo   string          `json:"orderNo"`
	Order     *api.SalesOrder `json:"so"`
	Items     []Item          `json:"items"`
	Logs      []LogEntry      `json:"logs"`
	CreatedAt int64           `json:"createdAt"`
	UpdatedAt int64           `json:"updatedAt"`
}

// ItemMeta is the order line denormalized at session creation, so later
// order edits never alter an in-progress draft.
type ItemMeta struct {
	Code        string  `json:"code"`
	Family      string  `json:"family"`
	Description string  `json:"description"`
	Qty         float64 `json:"qty"`
	ETA         string  `json:"eta"`
}

// Item is the per-line-item working state. Items are index-addressed; the
// index is the identity used throughout the system.
type Item struct {
	Meta     ItemMeta              `json:"meta"`
	Photos   []Photo               `json:"photos"`
	Checks   map[string]CheckState `json:"checks"`
	Comments map[string]string     `json:"comments"`
}

// Photo is the in-snapshot photo record; the full-resolution blob lives in
// the blob store under the same id.
type Photo struct {
	ID        string `json:"id"`
	Preview   string `json:"base64"`
	Timestamp int64  `json:"timestamp"`
	ItemIndex int    `json:"itemIndex"`
	Mime      string `json:"mime"`
}

// CheckState is a checklist result. Absence of the key means unset; unset is
// not "fail".
type CheckState string

const (
	CheckPass CheckState = "pass"
	CheckFail CheckState = "fail"
)

// Valid reports whether s is one of the two storable states.
func (s CheckState) Valid() bool { return s == CheckPass || s == CheckFail }

// LogEntry is one structured in-session log line. TS is set when the entry
// is appended to the session.
type LogEntry struct {
	Level   string         `json:"level"`
	Time    string         `json:"time"`
	Event   string         `json:"event"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
	TS      int64          `json:"ts,omitempty"`
}

// Counts are the derived session aggregates.
type Counts struct {
	Photos int `json:"photos"`
	Checks int `json:"checks"`
	Items  int `json:"items"`
}

// UploadResult summarizes a completed session upload.
type UploadResult struct {
	OrderNo     string `json:"ordNo"`
	Client      string `json:"cName"`
	TotalPhotos int    `json:"totalPhotos"`
}

func itemsFromOrder(so *api.SalesOrder) []Item {
	if so == nil {
		return []Item{}
	}
	items := make([]Item, 0, len(so.Items))
	for _, it := range so.Items {
		items = append(items, Item{
			Meta: ItemMeta{
				Code:        it.Code,
				Family:      it.Family,
				Description: it.Description,
				Qty:         it.Qty,
				ETA:         it.ETA,
			},
			Photos:   []Photo{},
			Checks:   map[string]CheckState{},
			Comments: map[string]string{},
		})
	}
	return items
}
