package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/view-ledger/internal/notifier"
	"github.com/vadimbarashkov/view-ledger/internal/pubsub"
	"github.com/vadimbarashkov/view-ledger/pkg/response"
)

const keepAliveInterval = 30 * time.Second

func handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "pong")
}

type visitRequest struct {
	SessionID string `json:"session_id" validate:"required,min=8,max=64"`
}

type viewsResponse struct {
	Views int64 `json:"views"`
}

func handleRecordVisit(svc LedgerService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleRecordVisit"
	const successMsg = "The visit has been processed."

	return func(w http.ResponseWriter, r *http.Request) {
		var req visitRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			if errors.Is(err, io.EOF) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.EmptyRequestBodyResponse)
				return
			}

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationErrorResponse(err))
			return
		}

		// A failed write is absorbed: the visit simply goes uncounted and
		// the page keeps rendering.
		if err := svc.RecordVisit(r.Context(), req.SessionID); err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})
		}

		render.Status(r, http.StatusAccepted)
		render.JSON(w, r, response.SuccessResponse(successMsg))
	}
}

func handleViewCount(svc LedgerService) http.HandlerFunc {
	const op = "api.http.handleViewCount"
	const successMsg = "The view count retrieved successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		count, err := svc.ViewCount(r.Context())
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			// Unknown is not zero: clients render no counter on non-200.
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, response.ServiceUnavailableResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, viewsResponse{Views: count}))
	}
}

func handleViewStream(svc LedgerService, ps pubsub.Pubsub, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleViewStream"

	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		// Record before the baseline read. The read may observe the count
		// before or after this write lands; the stream's first event is the
		// baseline either way. The session id carries the same rules as
		// POST /visits.
		if sessionID := r.URL.Query().Get("session_id"); sessionID != "" {
			req := visitRequest{SessionID: sessionID}

			if err := validate.Struct(req); err != nil {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.ValidationErrorResponse(err))
				return
			}

			if err := svc.RecordVisit(r.Context(), sessionID); err != nil {
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})
			}
		}

		events := make(chan int64, 16)
		watcher := notifier.NewWatcher(svc, ps, func(count int64) {
			select {
			case events <- count:
			default:
			}
		})
		defer watcher.Close()

		count, err := watcher.Resync(r.Context())
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, response.ServiceUnavailableResponse)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		sendCount := func(count int64) {
			data, err := json.Marshal(viewsResponse{Views: count})
			if err != nil {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}

		sendCount(count)

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case count := <-events:
				sendCount(count)
			case <-ticker.C:
				fmt.Fprint(w, ": keep-alive\n\n")
				flusher.Flush()
			}
		}
	}
}
