package www

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin authenticates an admin. The very first login on a fresh
// database creates the account with the supplied credentials.
func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil || req.Username == "" || req.Password == "" {
		writeErr(w, http.StatusBadRequest, "username and password required")
		return
	}
	db := h.engine.DB()

	user, err := db.GetAdminUser(req.Username)
	if errors.Is(err, sql.ErrNoRows) {
		exists, xerr := db.AdminUserExists()
		if xerr != nil {
			writeErr(w, http.StatusInternalServerError, xerr.Error())
			return
		}
		if exists {
			writeErr(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		hash, herr := hashPassword(req.Password)
		if herr != nil {
			writeErr(w, http.StatusInternalServerError, herr.Error())
			return
		}
		if _, cerr := db.CreateAdminUser(req.Username, hash); cerr != nil {
			writeErr(w, http.StatusInternalServerError, cerr.Error())
			return
		}
		h.sessions.setUser(w, r, req.Username)
		writeOK(w)
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !checkPassword(req.Password, user.PasswordHash) {
		writeErr(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	h.sessions.setUser(w, r, user.Username)
	writeOK(w)
}

func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.clear(w, r)
	writeOK(w)
}

type passwordRequest struct {
	Current string `json:"current"`
	New     string `json:"new"`
}

func (h *Handlers) apiChangePassword(w http.ResponseWriter, r *http.Request) {
	username, _ := h.sessions.getUser(r)
	var req passwordRequest
	if err := decodeBody(r, &req); err != nil || len(req.New) < 8 {
		writeErr(w, http.StatusBadRequest, "new password must be at least 8 characters")
		return
	}
	user, err := h.engine.DB().GetAdminUser(username)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !checkPassword(req.Current, user.PasswordHash) {
		writeErr(w, http.StatusUnauthorized, "current password incorrect")
		return
	}
	hash, err := hashPassword(req.New)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.engine.DB().UpdateAdminPassword(username, hash); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w)
}

// configView is the admin-visible slice of the config; secrets stay out.
type configView struct {
	DeviceID      string `json:"device_id"`
	BarcodeRegex  string `json:"barcode_regex"`
	GeniusURL     string `json:"genius_url"`
	SharePointURL string `json:"sharepoint_url"`
	LogURL        string `json:"log_url"`
	TemplateDir   string `json:"template_dir"`
}

func (h *Handlers) apiGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.engine.AppConfig()
	cfg.Lock()
	view := configView{
		DeviceID:      cfg.DeviceID,
		BarcodeRegex:  cfg.BarcodeRegex,
		GeniusURL:     cfg.API.GeniusURL,
		SharePointURL: cfg.API.SharePointURL,
		LogURL:        cfg.API.LogURL,
		TemplateDir:   cfg.Checklist.TemplateDir,
	}
	cfg.Unlock()
	writeJSON(w, http.StatusOK, view)
}

// apiUpdateConfig applies non-empty fields and persists the file. Endpoint
// changes take effect on next restart; the running API client keeps its
// config pointer.
func (h *Handlers) apiUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req configView
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad config body")
		return
	}
	cfg := h.engine.AppConfig()
	cfg.Lock()
	if s := strings.TrimSpace(req.DeviceID); s != "" {
		cfg.DeviceID = s
	}
	if s := strings.TrimSpace(req.BarcodeRegex); s != "" {
		cfg.BarcodeRegex = s
	}
	if s := strings.TrimSpace(req.GeniusURL); s != "" {
		cfg.API.GeniusURL = s
	}
	if s := strings.TrimSpace(req.SharePointURL); s != "" {
		cfg.API.SharePointURL = s
	}
	if s := strings.TrimSpace(req.LogURL); s != "" {
		cfg.API.LogURL = s
	}
	if s := strings.TrimSpace(req.TemplateDir); s != "" {
		cfg.Checklist.TemplateDir = s
		h.engine.Checklists().Invalidate("")
	}
	cfg.Unlock()

	if err := cfg.Save(h.engine.ConfigPath()); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w)
}
