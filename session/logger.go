package session

import (
	"fmt"
	"log"
	"time"
)

// Logger writes structured entries into the session log and mirrors them to
// the process log so field debugging does not depend on the upload path.
type Logger struct {
	m *Manager
}

// NewLogger wraps a manager.
func NewLogger(m *Manager) *Logger {
	return &Logger{m: m}
}

func (l *Logger) append(level, event, msg string, data map[string]any) {
	l.m.AppendLog(LogEntry{
		Level:   level,
		Time:    time.Now().UTC().Format(time.RFC3339),
		Event:   event,
		Message: msg,
		Data:    data,
	})
	if len(data) > 0 {
		log.Printf("[%s] %s %v", level, msg, data)
	} else {
		log.Printf("[%s] %s", level, msg)
	}
}

// Log records an info-level entry.
func (l *Logger) Log(event, msg string, data map[string]any) {
	l.append("info", event, msg, data)
}

// Warn records a warning entry.
func (l *Logger) Warn(event, msg string, data map[string]any) {
	l.append("warn", event, msg, data)
}

// Error records an error entry.
func (l *Logger) Error(event, msg string, data map[string]any) {
	l.append("error", event, msg, data)
}

// Shorthands for the recurring session milestones. Event names double as the
// analytics keys on the collector side, so keep them stable.

func (l *Logger) BarcodeScanned(code string) {
	l.Log("scan/ok", fmt.Sprintf("[SCAN] %s", code), nil)
}

func (l *Logger) PhotoTaken(itemIndex int, photoID string) {
	l.Log("photo/added", fmt.Sprintf("[PHOTO] item %d", itemIndex), map[string]any{"id": photoID})
}

func (l *Logger) PhotoDeleted(itemIndex int, photoID string) {
	l.Log("photo/removed", fmt.Sprintf("[PHOTO_DELETE] item %d", itemIndex), map[string]any{"id": photoID})
}

func (l *Logger) ChecklistUpdated(itemIndex int, checkID string, state CheckState) {
	l.Log("check/updated", fmt.Sprintf("[CHECK] item %d %s=%s", itemIndex, checkID, state), nil)
}

func (l *Logger) UploadStarted(orderNo string) {
	l.Log("upload/started", fmt.Sprintf("[UPLOAD] %s", orderNo), nil)
}

func (l *Logger) UploadCompleted(orderNo string, photos int) {
	l.Log("upload/completed", fmt.Sprintf("[UPLOAD_DONE] %s", orderNo), map[string]any{"photos": photos})
}
