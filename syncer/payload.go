package syncer

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"qckiosk/api"
	"qckiosk/session"
)

// LogPayload is the document posted to the log collector for one session.
type LogPayload struct {
	SessionID  string     `json:"sessionId"`
	OrderID    string     `json:"orderId"`
	Device     DeviceInfo `json:"device"`
	AppVersion string     `json:"appVersion"`
	Logs       []string   `json:"logs"`
	Timestamp  int64      `json:"timestamp"`
	StartTime  int64      `json:"startTime"`
}

// DeviceInfo identifies the kiosk in log payloads.
type DeviceInfo struct {
	Type  string `json:"type"`
	Model string `json:"model"`
	ID    string `json:"id,omitempty"`
}

// BuildLogPayload flattens a session's structured logs into the collector's
// line format. The session id is orderNo-createdAt, which stays stable across
// draft reloads of the same session.
func BuildLogPayload(snap *session.Snapshot, logs []session.LogEntry, deviceID, appVersion string) ([]byte, error) {
	host, _ := os.Hostname()
	lines := make([]string, 0, len(logs))
	for _, e := range logs {
		lines = append(lines, formatLogLine(e))
	}
	p := LogPayload{
		SessionID:  fmt.Sprintf("%s-%d", snap.OrderNo, snap.CreatedAt),
		OrderID:    snap.OrderNo,
		Device:     DeviceInfo{Type: "kiosk", Model: host, ID: deviceID},
		AppVersion: appVersion,
		Logs:       lines,
		Timestamp:  time.Now().UnixMilli(),
		StartTime:  snap.CreatedAt,
	}
	return json.Marshal(p)
}

// formatLogLine renders one entry as "2006-01-02 15:04:05 [tag] message"
// with the data object appended as JSON when present.
func formatLogLine(e session.LogEntry) string {
	ts := time.UnixMilli(e.TS)
	if e.TS == 0 {
		ts = time.Now()
	}
	tag := e.Level
	if tag == "" {
		tag = "kiosk"
	}
	line := fmt.Sprintf("%s [%s] %s", ts.Format("2006-01-02 15:04:05"), tag, e.Message)
	if len(e.Data) > 0 {
		if raw, err := json.Marshal(e.Data); err == nil {
			line += " " + string(raw)
		}
	}
	return strings.TrimSpace(line)
}

// BuildFolderSummary formats the folder preflight result for the append
// prompt. Only image files are listed, sorted by name.
func BuildFolderSummary(info *api.FolderInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Photos already exist for %s.%s\n", info.Customer, info.OrderNo)

	names := make([]string, 0, len(info.Files))
	for _, f := range info.Files {
		if strings.HasPrefix(f.ContentType, "image/") {
			names = append(names, f.Name)
		}
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(&b, "  %s\n", n)
	}
	b.WriteString("Append more photos?")
	return b.String()
}

// checklistDoc is the checklist envelope that rides on the first photo of a
// session upload.
type checklistDoc struct {
	Items []checklistItem `json:"items"`
}

type checklistItem struct {
	Code     string                        `json:"code"`
	Checks   map[string]session.CheckState `json:"checks"`
	Comments map[string]string             `json:"comments"`
}

// buildChecklist serializes all items' checks and comments.
func buildChecklist(snap *session.Snapshot) (json.RawMessage, error) {
	doc := checklistDoc{Items: make([]checklistItem, 0, len(snap.Items))}
	for _, it := range snap.Items {
		doc.Items = append(doc.Items, checklistItem{
			Code:     it.Meta.Code,
			Checks:   it.Checks,
			Comments: it.Comments,
		})
	}
	return json.Marshal(doc)
}
