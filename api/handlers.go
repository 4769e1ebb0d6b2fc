package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/philtim/figured/cards"
	"github.com/philtim/figured/clock"
)

type queryRequest struct {
	Query string `json:"query"`
}

type cardsResponse struct {
	Cards   []cards.Row `json:"cards"`
	HomeSet bool        `json:"homeSet"`
	Unsaved bool        `json:"unsaved"`
}

// handleListCards returns the sorted rows. An optional ?at=RFC3339 renders
// them at another instant.
func handleListCards(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		at := time.Now()
		if s := r.URL.Query().Get("at"); s != "" {
			parsed, err := time.Parse(time.RFC3339, s)
			if err != nil {
				writeError(w, http.StatusBadRequest, "at must be an RFC 3339 timestamp")
				return
			}
			at = parsed
		}

		writeJSON(w, http.StatusOK, cardsResponse{
			Cards:   svc.Rows(at),
			HomeSet: svc.HomeSet(),
			Unsaved: svc.Unsaved(),
		})
	}
}

func handleAddCard(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if err := readJSON(r, &req); err != nil || strings.TrimSpace(req.Query) == "" {
			writeError(w, http.StatusBadRequest, "query is required")
			return
		}

		n, err := svc.AddCity(r.Context(), req.Query)
		if err != nil {
			writeFailure(w, err, n)
			return
		}
		writeJSON(w, http.StatusOK, n)
	}
}

func handleRemoveCard(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := clock.ParseGroupKey(chi.URLParam(r, "key"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		n, err := svc.RemoveCard(r.Context(), key)
		if err != nil {
			writeFailure(w, err, n)
			return
		}
		writeJSON(w, http.StatusOK, n)
	}
}

func handleSetHome(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if err := readJSON(r, &req); err != nil || strings.TrimSpace(req.Query) == "" {
			writeError(w, http.StatusBadRequest, "query is required")
			return
		}

		n, err := svc.SetHome(r.Context(), req.Query)
		if err != nil {
			writeFailure(w, err, n)
			return
		}
		writeJSON(w, http.StatusOK, n)
	}
}

func handleSearch(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Search(r.URL.Query().Get("q")))
	}
}

func handleHealth(svc Service) http.HandlerFunc {
	type result struct {
		Status  string `json:"status"`
		Unsaved bool   `json:"unsaved"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		res := result{Status: "ok", Unsaved: svc.Unsaved()}
		if res.Unsaved {
			res.Status = "degraded"
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// handleTicks streams tick events as server-sent events. It never touches
// the collection; clients fetch /api/cards when a tick arrives.
func handleTicks(logger *slog.Logger, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		ch := broker.Subscribe()
		defer broker.Unsubscribe(ch)
		logger.Debug("tick subscriber connected", "subscribers", broker.Subscribers())

		ping := time.NewTicker(30 * time.Second)
		defer ping.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case data := <-ch:
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", TickEventType, data)
				flusher.Flush()
			case <-ping.C:
				fmt.Fprintf(w, ": ping\n\n")
				flusher.Flush()
			}
		}
	}
}
