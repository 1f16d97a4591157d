package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/erikmillergalow/impermachat/internal/templates"
	"github.com/erikmillergalow/impermachat/internal/utils"
)

// sanitizeRoomName keeps only ASCII letters, digits, '-' and '_', lowercased,
// so a room id is always safe as a URL path segment. Sanitizing an already
// sanitized name changes nothing.
func sanitizeRoomName(name string) string {
	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
			b.WriteRune(c)
		case c >= 'A' && c <= 'Z':
			b.WriteRune(c + ('a' - 'A'))
		}
	}
	return b.String()
}

// formCount reads an unsigned form field, treating missing or malformed
// values as zero.
func formCount(req *http.Request, key string) uint64 {
	n, err := strconv.ParseUint(req.FormValue(key), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// IndexHandler serves the landing page
func (r *Router) IndexHandler(w http.ResponseWriter, req *http.Request) {
	r.renderIndex(w, req, templates.Index{})
}

// CreateRoomHandler sanitizes the requested room name and redirects to the
// room page carrying the chosen lifetime. An empty name re-renders the
// landing page with a prompt instead.
func (r *Router) CreateRoomHandler(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseForm(); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid form")
		return
	}

	if strings.TrimSpace(req.FormValue("room_name")) == "" {
		r.renderIndex(w, req, templates.Index{ShowMessage: true, Message: "Enter a room name"})
		return
	}

	roomPath := fmt.Sprintf("/room/%s?hours=%d&minutes=%d",
		sanitizeRoomName(req.FormValue("room_name")),
		formCount(req, "hours"),
		formCount(req, "minutes"),
	)
	http.Redirect(w, req, roomPath, http.StatusSeeOther)
}

func (r *Router) renderIndex(w http.ResponseWriter, req *http.Request, data templates.Index) {
	page, err := r.renderer.Render("index.html", data)
	if err != nil {
		r.logger.Error(req.Context(), "failed to render landing page: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "template error")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, page)
}

// HealthzHandler returns API health status. There are no dependencies to
// probe; rooms live and die in process memory.
func (r *Router) HealthzHandler(w http.ResponseWriter, req *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
