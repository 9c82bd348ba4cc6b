package www

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"qckiosk/fsm"
	"qckiosk/session"

	"github.com/go-chi/chi/v5"
)

// maxPhotoBytes bounds a single capture upload.
const maxPhotoBytes = 32 << 20

func (h *Handlers) apiStatus(w http.ResponseWriter, r *http.Request) {
	st := h.engine.State()
	mgr := h.engine.Session()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":        st.State,
		"order_no":     st.Ctx.OrderNo,
		"msg":          st.Ctx.Msg,
		"warn":         st.Ctx.Warn,
		"current_item": mgr.CurrentItem(),
		"counts":       mgr.Counts(),
		"has_data":     mgr.HasAnyData(),
	})
}

func (h *Handlers) apiListDrafts(w http.ResponseWriter, r *http.Request) {
	drafts, err := h.engine.Session().ListDrafts()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, drafts)
}

func (h *Handlers) apiDeleteDraft(w http.ResponseWriter, r *http.Request) {
	orderNo := chi.URLParam(r, "orderNo")
	if orderNo == "" {
		writeErr(w, http.StatusBadRequest, "order number required")
		return
	}
	h.engine.Session().RemoveFromStorage(orderNo)
	writeOK(w)
}

type codeRequest struct {
	Code string `json:"code"`
}

func (h *Handlers) apiSubmitScan(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeBody(r, &req); err != nil || strings.TrimSpace(req.Code) == "" {
		writeErr(w, http.StatusBadRequest, "code required")
		return
	}
	h.engine.Driver().SubmitScan(strings.TrimSpace(req.Code))
	writeOK(w)
}

func (h *Handlers) apiSubmitManual(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeBody(r, &req); err != nil || strings.TrimSpace(req.Code) == "" {
		writeErr(w, http.StatusBadRequest, "code required")
		return
	}
	h.engine.Driver().SubmitManual(strings.TrimSpace(req.Code))
	writeOK(w)
}

func (h *Handlers) apiAnswerPrompt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "promptID")
	var ans promptAnswer
	if err := decodeBody(r, &ans); err != nil {
		writeErr(w, http.StatusBadRequest, "bad answer body")
		return
	}
	if !h.prompts.Answer(id, ans) {
		writeErr(w, http.StatusGone, "prompt expired")
		return
	}
	writeOK(w)
}

func (h *Handlers) apiGetSession(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Session().Serialize()
	if snap == nil {
		writeErr(w, http.StatusNotFound, "no active session")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handlers) apiDone(w http.ResponseWriter, r *http.Request) {
	mgr := h.engine.Session()
	if !mgr.HasAnyData() {
		writeErr(w, http.StatusBadRequest, "nothing to upload yet")
		return
	}
	h.engine.Driver().Dispatch(fsm.Event{Type: fsm.EventDoneClicked})
	writeOK(w)
}

func (h *Handlers) apiAck(w http.ResponseWriter, r *http.Request) {
	h.engine.Driver().Dispatch(fsm.Event{Type: fsm.EventAck})
	writeOK(w)
}

func (h *Handlers) apiGetLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Session().GetLogs())
}

func itemIndex(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "index"))
}

func (h *Handlers) apiSelectItem(w http.ResponseWriter, r *http.Request) {
	idx, err := itemIndex(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad item index")
		return
	}
	if err := h.engine.Session().SetCurrentItem(idx); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, session.ErrNoActiveSession) {
			status = http.StatusConflict
		}
		writeErr(w, status, err.Error())
		return
	}
	writeOK(w)
}

func (h *Handlers) apiGetItem(w http.ResponseWriter, r *http.Request) {
	idx, err := itemIndex(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad item index")
		return
	}
	mgr := h.engine.Session()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"photos":   mgr.GetPhotos(idx),
		"checks":   mgr.GetChecklist(idx),
		"comments": mgr.GetComments(idx),
	})
}

func (h *Handlers) apiUpdateChecks(w http.ResponseWriter, r *http.Request) {
	idx, err := itemIndex(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad item index")
		return
	}
	var patch map[string]session.CheckState
	if err := decodeBody(r, &patch); err != nil {
		writeErr(w, http.StatusBadRequest, "bad patch body")
		return
	}
	h.engine.Session().UpdateChecklist(idx, patch)
	writeOK(w)
}

type commentRequest struct {
	SectionID string `json:"section_id"`
	Text      string `json:"text"`
}

func (h *Handlers) apiUpdateComment(w http.ResponseWriter, r *http.Request) {
	idx, err := itemIndex(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad item index")
		return
	}
	var req commentRequest
	if err := decodeBody(r, &req); err != nil || req.SectionID == "" {
		writeErr(w, http.StatusBadRequest, "section_id required")
		return
	}
	h.engine.Session().UpdateComment(idx, req.SectionID, req.Text)
	writeOK(w)
}

// apiAddPhoto accepts a multipart capture: the full-resolution frame under
// "photo" and the small preview data URL under "preview".
func (h *Handlers) apiAddPhoto(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxPhotoBytes); err != nil {
		writeErr(w, http.StatusBadRequest, "bad multipart body")
		return
	}
	file, hdr, err := r.FormFile("photo")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "photo part required")
		return
	}
	defer file.Close()
	blob, err := io.ReadAll(io.LimitReader(file, maxPhotoBytes))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "read photo")
		return
	}

	photo, err := h.engine.Session().SavePhoto(blob, r.FormValue("preview"), hdr.Header.Get("Content-Type"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrNoActiveSession) || errors.Is(err, session.ErrNoItemSelected) {
			status = http.StatusConflict
		}
		writeErr(w, status, err.Error())
		return
	}
	h.engine.SessionLog().PhotoTaken(photo.ItemIndex, photo.ID)
	writeJSON(w, http.StatusOK, photo)
}

func (h *Handlers) apiDeletePhoto(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "photoID")
	mgr := h.engine.Session()
	if !mgr.RemovePhoto(id) {
		writeErr(w, http.StatusNotFound, "photo not found on current item")
		return
	}
	h.engine.SessionLog().PhotoDeleted(mgr.CurrentItem(), id)
	writeOK(w)
}

func (h *Handlers) apiChecklist(w http.ResponseWriter, r *http.Request) {
	family := chi.URLParam(r, "family")
	sections, err := h.engine.Checklists().LoadSections(family)
	if err != nil {
		// Partial results still render; the error names what failed.
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"sections": sections,
			"partial":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sections": sections})
}

func (h *Handlers) apiStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Session().Stats()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	pending, _ := h.engine.Syncer().PendingLogs()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"photos":       stats,
		"pending_logs": pending,
	})
}
