package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mkase/streamlens/backend/internal/hub"
	"github.com/mkase/streamlens/backend/internal/middleware"
	"github.com/mkase/streamlens/backend/internal/session"
	"github.com/mkase/streamlens/backend/internal/store"
	"github.com/mkase/streamlens/backend/pkg/utils"
)

// defaultHistoryWindow bounds the REST history endpoints when the caller
// does not pass an explicit since timestamp.
const defaultHistoryWindow = time.Hour

// NewRouter wires the websocket endpoint, the metrics endpoint, a small
// read-only REST surface, and the static viewer assets.
func NewRouter(h *hub.Hub, mgr *session.Manager, st *store.Store) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS)

	r.Get("/ws", h.ServeWS)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api", func(api chi.Router) {
		api.Get("/channels", func(w http.ResponseWriter, req *http.Request) {
			names, err := st.ListChannels(req.Context())
			if err != nil {
				utils.RespondError(w, http.StatusInternalServerError, "failed to list channels")
				return
			}
			utils.RespondJSON(w, http.StatusOK, names)
		})

		api.Get("/current-channel", func(w http.ResponseWriter, req *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"name": mgr.CurrentChannel()})
		})

		api.Get("/channels/{name}/messages", func(w http.ResponseWriter, req *http.Request) {
			name := session.NormalizeChannel(chi.URLParam(req, "name"))
			if name == "" {
				utils.RespondError(w, http.StatusBadRequest, "channel name is required")
				return
			}
			since, err := parseSince(req)
			if err != nil {
				utils.RespondError(w, http.StatusBadRequest, "since must be an RFC3339 timestamp")
				return
			}
			msgs, err := st.RecentMessages(req.Context(), name, since)
			if err != nil {
				utils.RespondError(w, http.StatusInternalServerError, "failed to load messages")
				return
			}
			utils.RespondJSON(w, http.StatusOK, msgs)
		})

		api.Get("/channels/{name}/transcriptions", func(w http.ResponseWriter, req *http.Request) {
			name := session.NormalizeChannel(chi.URLParam(req, "name"))
			if name == "" {
				utils.RespondError(w, http.StatusBadRequest, "channel name is required")
				return
			}
			since, err := parseSince(req)
			if err != nil {
				utils.RespondError(w, http.StatusBadRequest, "since must be an RFC3339 timestamp")
				return
			}
			trs, err := st.RecentTranscriptions(req.Context(), name, since)
			if err != nil {
				utils.RespondError(w, http.StatusInternalServerError, "failed to load transcriptions")
				return
			}
			utils.RespondJSON(w, http.StatusOK, trs)
		})
	})

	// Viewer frontend.
	r.Handle("/*", http.FileServer(http.Dir("public")))

	return r
}

func parseSince(req *http.Request) (time.Time, error) {
	raw := req.URL.Query().Get("since")
	if raw == "" {
		return time.Now().UTC().Add(-defaultHistoryWindow), nil
	}
	return time.Parse(time.RFC3339, raw)
}
