package http

import (
	"encoding/json"
	"net/http"

	"tally/internal/core"
	"tally/internal/log"
)

// sseEvent is one server-sent message: a full snapshot of one
// collection, never a diff.
type sseEvent struct {
	name string
	data []byte
}

// handleEvents streams full collection snapshots over SSE. Each
// connection gets its own store subscriptions; closing the connection
// tears them down.
//
// Each collection has a single pending slot. When the client falls
// behind, a newer snapshot replaces the undelivered one, so the latest
// state always wins and intermediate states are skipped.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	projectEvents := make(chan []byte, 1)
	expenseEvents := make(chan []byte, 1)
	fail := make(chan error, 2)

	unsubProjects, err := s.st.SubscribeProjects(r.Context(), func(projects []core.Project) {
		pushSnapshot(projectEvents, projects)
	}, func(err error) {
		select {
		case fail <- err:
		default:
		}
	})
	if err != nil {
		s.logger.ErrorContext(r.Context(), "SSE project subscription failed", log.FieldError, err)
		http.Error(w, "subscription failed", http.StatusServiceUnavailable)
		return
	}
	defer unsubProjects()

	unsubExpenses, err := s.st.SubscribeExpenses(r.Context(), func(expenses []core.Expense) {
		pushSnapshot(expenseEvents, expenses)
	}, func(err error) {
		select {
		case fail <- err:
		default:
		}
	})
	if err != nil {
		s.logger.ErrorContext(r.Context(), "SSE expense subscription failed", log.FieldError, err)
		http.Error(w, "subscription failed", http.StatusServiceUnavailable)
		return
	}
	defer unsubExpenses()

	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case err := <-fail:
			s.logger.WarnContext(r.Context(), "SSE stream ending after sync error", log.FieldError, err)
			writeSSE(w, sseEvent{name: "sync-error", data: []byte(`{}`)})
			flusher.Flush()
			return
		case data := <-projectEvents:
			writeSSE(w, sseEvent{name: "projects", data: data})
			flusher.Flush()
		case data := <-expenseEvents:
			writeSSE(w, sseEvent{name: "expenses", data: data})
			flusher.Flush()
		}
	}
}

// pushSnapshot marshals the snapshot into the collection's pending
// slot, draining a stale undelivered one first. Snapshots for one
// collection arrive from a single hub goroutine, so drain-then-send
// cannot race with another producer.
func pushSnapshot[T any](pending chan []byte, snapshot []T) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	select {
	case <-pending:
	default:
	}
	pending <- data
}

func writeSSE(w http.ResponseWriter, ev sseEvent) {
	_, _ = w.Write([]byte("event: " + ev.name + "\n"))
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(ev.data)
	_, _ = w.Write([]byte("\n\n"))
}
