// Package checklist loads QC checklist templates from disk and resolves
// which templates apply to a product family.
package checklist

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"qckiosk/config"
)

// Section is one category of checklist rows.
type Section struct {
	Category string `json:"category"`
	Items    []Row  `json:"items"`
}

// Row is one checkable line: what to inspect, the spec to meet, and the
// tool used to verify.
type Row struct {
	Item string `json:"item"`
	Spec string `json:"spec"`
	Tool string `json:"tool"`
}

const (
	readRetries = 2
	readBackoff = 100 * time.Millisecond
)

// Loader reads template files from a directory, caching parsed results.
// Template files are <name>.json holding a []Section document.
type Loader struct {
	cfg *config.ChecklistConfig

	mu    sync.Mutex
	cache map[string][]Section
}

// NewLoader creates a loader over the configured template directory.
func NewLoader(cfg *config.ChecklistConfig) *Loader {
	return &Loader{cfg: cfg, cache: map[string][]Section{}}
}

// TemplatesFor resolves the template list for a family code. The special
// entry "all" expands to every known template. Unknown families get no
// templates rather than an error; the session proceeds without a checklist.
func (l *Loader) TemplatesFor(family string) []string {
	names, ok := l.cfg.FamilyMap[strings.ToUpper(strings.TrimSpace(family))]
	if !ok {
		return nil
	}
	var out []string
	for _, n := range names {
		if n == "all" {
			out = append(out, l.cfg.AllTemplates...)
			continue
		}
		out = append(out, n)
	}
	return out
}

// LoadSections loads every template for a family and concatenates their
// sections. Individual template failures are tolerated: loading proceeds
// with what parsed, and the failures come back aggregated so the caller can
// log them once.
func (l *Loader) LoadSections(family string) ([]Section, error) {
	names := l.TemplatesFor(family)
	var sections []Section
	var failed []string
	for _, name := range names {
		s, err := l.loadTemplate(name)
		if err != nil {
			log.Printf("checklist template %s: %v", name, err)
			failed = append(failed, name)
			continue
		}
		sections = append(sections, s...)
	}
	if len(failed) > 0 {
		return sections, fmt.Errorf("%d of %d checklist templates failed: %s",
			len(failed), len(names), strings.Join(failed, ", "))
	}
	return sections, nil
}

func (l *Loader) loadTemplate(name string) ([]Section, error) {
	l.mu.Lock()
	if s, ok := l.cache[name]; ok {
		l.mu.Unlock()
		return s, nil
	}
	l.mu.Unlock()

	path := filepath.Join(l.cfg.TemplateDir, name+".json")
	body, err := readWithRetry(path)
	if err != nil {
		return nil, err
	}
	var sections []Section
	if err := json.Unmarshal(body, &sections); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	l.mu.Lock()
	l.cache[name] = sections
	l.mu.Unlock()
	return sections, nil
}

// readWithRetry absorbs transient filesystem hiccups on network-mounted
// template directories. Missing files fail immediately.
func readWithRetry(path string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= readRetries; attempt++ {
		body, err := os.ReadFile(path)
		if err == nil {
			return body, nil
		}
		if os.IsNotExist(err) {
			return nil, err
		}
		lastErr = err
		time.Sleep(readBackoff)
	}
	return nil, lastErr
}

// Invalidate drops the cached copy of a template, or all templates when
// name is empty.
func (l *Loader) Invalidate(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if name == "" {
		l.cache = map[string][]Section{}
		return
	}
	delete(l.cache, name)
}
