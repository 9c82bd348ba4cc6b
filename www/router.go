// Package www is the kiosk's HTTP surface: a JSON API for the touch UI,
// server-sent events for live updates, and the admin configuration
// endpoints behind cookie auth.
package www

import (
	"net/http"

	"qckiosk/engine"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	engine   *engine.Engine
	sessions *sessionStore
	eventHub *EventHub
	prompts  *PromptBroker
}

// NewRouter creates the chi router. The returned PromptBroker must be
// installed as the engine's Prompter before the engine starts; the stop
// function tears down the SSE hub.
func NewRouter(eng *engine.Engine) (http.Handler, *PromptBroker, func()) {
	h := &Handlers{
		engine:   eng,
		sessions: newSessionStore(eng.AppConfig().Web.SessionSecret),
		eventHub: NewEventHub(),
		prompts:  NewPromptBroker(eng.Events, eng.AppConfig().Web.PromptTimeout),
	}

	h.eventHub.Start()
	h.eventHub.SetupEngineListeners(eng)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// SSE stream is open, the shop floor UI has no login.
	r.Get("/events", h.eventHub.HandleSSE)

	// Login/logout
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)

	r.Route("/api", func(r chi.Router) {
		// Public API (shop floor actions)
		r.Get("/status", h.apiStatus)
		r.Get("/drafts", h.apiListDrafts)
		r.Delete("/drafts/{orderNo}", h.apiDeleteDraft)
		r.Post("/scan", h.apiSubmitScan)
		r.Post("/manual", h.apiSubmitManual)
		r.Post("/prompts/{promptID}/answer", h.apiAnswerPrompt)

		r.Get("/session", h.apiGetSession)
		r.Post("/session/done", h.apiDone)
		r.Post("/session/ack", h.apiAck)
		r.Get("/session/logs", h.apiGetLogs)
		r.Post("/session/item/{index}", h.apiSelectItem)
		r.Get("/session/items/{index}", h.apiGetItem)
		r.Put("/session/items/{index}/checks", h.apiUpdateChecks)
		r.Put("/session/items/{index}/comments", h.apiUpdateComment)
		r.Post("/session/photos", h.apiAddPhoto)
		r.Delete("/session/photos/{photoID}", h.apiDeletePhoto)

		r.Get("/checklist/{family}", h.apiChecklist)
		r.Get("/stats", h.apiStats)

		// Admin API (setup mutations)
		r.Group(func(r chi.Router) {
			r.Use(h.adminMiddleware)
			r.Get("/config", h.apiGetConfig)
			r.Put("/config", h.apiUpdateConfig)
			r.Post("/config/password", h.apiChangePassword)
		})
	})

	return r, h.prompts, func() {
		h.eventHub.Stop()
	}
}

func (h *Handlers) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, ok := h.sessions.getUser(r)
		if !ok || username == "" {
			writeErr(w, http.StatusUnauthorized, "login required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
