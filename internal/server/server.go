package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/suspectuso/welcome-bot/internal/scheduler"
)

// PendingLister reports the armed deletions.
type PendingLister interface {
	Pending() []scheduler.Task
}

// Server exposes health, metrics and the pending deletion queue
type Server struct {
	pending PendingLister
	log     *slog.Logger

	server *http.Server
}

// New creates a new status server
func New(pending PendingLister, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		pending: pending,
		log:     log,
	}
}

// Handler returns the routes served by Start.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/pending", s.handlePending)
	mux.HandleFunc("/", s.handleHealth)
	return mux
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context, port int) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.log.Info("starting status server", "port", port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	return s.server.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

type pendingTask struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int    `json:"message_id"`
	ThreadID  *int   `json:"thread_id"`
	FireAt    string `json:"fire_at"`
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tasks := s.pending.Pending()
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].FireAt.Before(tasks[j].FireAt) })

	out := make([]pendingTask, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, pendingTask{
			ChatID:    t.ChatID,
			MessageID: t.MessageID,
			ThreadID:  t.ThreadID,
			FireAt:    t.FireAt.UTC().Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.log.Warn("encode pending deletions", "error", err)
	}
}
