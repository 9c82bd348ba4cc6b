// Package engine wires the kiosk subsystems together: store, session model,
// syncer, controller driver and the event bus presentation layers hang off.
package engine

import (
	"fmt"
	"net/url"

	"qckiosk/api"
	"qckiosk/checklist"
	"qckiosk/config"
	"qckiosk/fsm"
	"qckiosk/session"
	"qckiosk/store"
	"qckiosk/syncer"
)

// Version is stamped at build time and rides on log payloads.
var Version = "dev"

// LogFunc is the logging callback signature.
type LogFunc func(format string, args ...interface{})

// Engine centralizes all business logic and orchestrates subsystems.
type Engine struct {
	cfg        *config.Config
	configPath string
	db         *store.DB
	logFn      LogFunc

	apiClient  *api.Client
	sessionMgr *session.Manager
	sessionLog *session.Logger
	syncMgr    *syncer.Syncer
	drainer    *syncer.Drainer
	checklists *checklist.Loader
	driver     *Driver

	// Prompter and Camera may be set before Start; nil means headless.
	Prompter Prompter
	Camera   Camera

	Events   *EventBus
	stopChan chan struct{}
}

// Config holds the parameters needed to create an Engine.
type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	DB         *store.DB
	LogFunc    LogFunc
}

// New creates a new Engine. Call Start() to initialize and wire subsystems.
func New(c Config) *Engine {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = func(string, ...interface{}) {}
	}
	return &Engine{
		cfg:        c.AppConfig,
		configPath: c.ConfigPath,
		db:         c.DB,
		logFn:      logFn,
		Events:     NewEventBus(),
		stopChan:   make(chan struct{}),
	}
}

// Start creates all managers, wires event handlers, and starts subsystems.
func (e *Engine) Start() error {
	e.apiClient = api.NewClient(&e.cfg.API)
	e.checklists = checklist.NewLoader(&e.cfg.Checklist)

	e.syncMgr = syncer.New(e.apiClient, e.db, e.cfg.DeviceID, Version, probeAddr(e.cfg.API.LogURL))
	e.syncMgr.Progress = func(done, total int, text string) {
		e.Events.Emit(Event{Type: EventUploadProgress, Payload: UploadProgressEvent{
			Done: done, Total: total, Text: text,
		}})
	}

	emit := &sessionEmitter{bus: e.Events}
	e.sessionMgr = session.NewManager(e.db, emit, e.syncMgr, e.cfg.PersistDebounce, e.cfg.StorageQuota)
	e.sessionLog = session.NewLogger(e.sessionMgr)

	drv, err := NewDriver(DriverConfig{
		AppConfig:  e.cfg,
		Manager:    e.sessionMgr,
		Logger:     e.sessionLog,
		API:        e.apiClient,
		Syncer:     e.syncMgr,
		Checklists: e.checklists,
		Prompter:   e.Prompter,
		Camera:     e.Camera,
		Bus:        e.Events,
	})
	if err != nil {
		return fmt.Errorf("controller: %w", err)
	}
	e.driver = drv

	e.drainer = syncer.NewDrainer(e.syncMgr, 0)
	e.drainer.Start()
	e.driver.Start()

	e.logFn("Engine started: device=%s db=%s", e.cfg.DeviceID, e.cfg.DatabasePath)
	return nil
}

// Stop shuts down all subsystems gracefully and flushes any debounced
// snapshot write.
func (e *Engine) Stop() {
	select {
	case <-e.stopChan:
	default:
		close(e.stopChan)
	}
	if e.driver != nil {
		e.driver.Stop()
	}
	if e.drainer != nil {
		e.drainer.Stop()
	}
	if e.sessionMgr != nil {
		e.sessionMgr.Flush()
	}
	e.logFn("Engine stopped")
}

// probeAddr extracts host:port from the log collector URL for the online
// probe; empty disables probing.
func probeAddr(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	host := u.Host
	if u.Port() == "" {
		if u.Scheme == "https" {
			host += ":443"
		} else {
			host += ":80"
		}
	}
	return host
}

// DB returns the database handle.
func (e *Engine) DB() *store.DB { return e.db }

// AppConfig returns the app config.
func (e *Engine) AppConfig() *config.Config { return e.cfg }

// ConfigPath returns the config file path.
func (e *Engine) ConfigPath() string { return e.configPath }

// Session returns the session manager.
func (e *Engine) Session() *session.Manager { return e.sessionMgr }

// SessionLog returns the structured session logger.
func (e *Engine) SessionLog() *session.Logger { return e.sessionLog }

// Driver returns the controller driver.
func (e *Engine) Driver() *Driver { return e.driver }

// Checklists returns the template loader.
func (e *Engine) Checklists() *checklist.Loader { return e.checklists }

// Syncer returns the upload/offline-queue manager.
func (e *Engine) Syncer() *syncer.Syncer { return e.syncMgr }

// State returns the controller's current status.
func (e *Engine) State() fsm.Status { return e.driver.Status() }
