// Command ingress runs the minimal HTTP ingestion endpoint described in
// spec.md §6: it accepts a lead, computes the idempotency key, inserts
// the Lead row, and enqueues the processing job.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/leadcatalyst/core/internal/config"
	"github.com/leadcatalyst/core/internal/litemode"
	"github.com/leadcatalyst/core/pkg/lead"
	"github.com/leadcatalyst/core/pkg/queue"
	"github.com/leadcatalyst/core/pkg/worker"
)

type ingestRequest struct {
	Email      string `json:"email"`
	CampaignID string `json:"campaign_id"`
	Name       string `json:"name,omitempty"`
}

type ingestResponse struct {
	ID             int64  `json:"id"`
	IdempotencyKey string `json:"idempotency_key"`
	Status         string `json:"status"`
}

type server struct {
	leadStore lead.Store
	queue     *queue.Client
	logger    *slog.Logger
}

func main() {
	if err := run(); err != nil {
		slog.Error("ingress exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{Addr: parseAddr(cfg.RedisURL)})
	defer rdb.Close()

	var (
		leadStore lead.Store
		db        *sql.DB
		err       error
	)
	if litemode.Enabled(cfg.DatabaseURL) {
		leadStore, _, db, err = litemode.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("ingress: open lite-mode store: %w", err)
		}
		logger.Info("ingress running in lite mode", "database_url", cfg.DatabaseURL)
	} else {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("ingress: open database: %w", err)
		}
		pgLeads := lead.NewPostgresStore(db)
		if err := pgLeads.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ingress: ensure schema: %w", err)
		}
		leadStore = pgLeads
	}
	defer db.Close()

	srv := &server{leadStore: leadStore, queue: queue.New(rdb), logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/leads", srv.handleIngest)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	httpSrv := &http.Server{Addr: ":8080", Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("ingress listening", "addr", httpSrv.Addr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ingress: serve: %w", err)
	}
	return nil
}

func (s *server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		http.Error(w, "invalid email", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.CampaignID) == "" {
		http.Error(w, "campaign_id is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	key := lead.ComputeIdempotencyKey(req.Email, req.CampaignID)

	if existing, err := s.leadStore.FindByIdempotencyKey(ctx, key); err == nil {
		writeJSON(w, http.StatusOK, ingestResponse{ID: existing.ID, IdempotencyKey: existing.IdempotencyKey, Status: string(existing.Status)})
		return
	} else if !errors.Is(err, lead.ErrNotFound) {
		s.logger.Error("lookup by idempotency key failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	l := &lead.Lead{
		IdempotencyKey: key,
		Email:          req.Email,
		CampaignID:     req.CampaignID,
		Name:           req.Name,
		Status:         lead.StatusPending,
	}
	if err := s.leadStore.Create(ctx, l); err != nil {
		if lead.IsUniqueViolation(err) {
			existing, findErr := s.leadStore.FindByIdempotencyKey(ctx, key)
			if findErr != nil {
				s.logger.Error("lookup after unique violation failed", "error", findErr)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, ingestResponse{ID: existing.ID, IdempotencyKey: existing.IdempotencyKey, Status: string(existing.Status)})
			return
		}
		s.logger.Error("create lead failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if _, err := s.queue.Enqueue(ctx, worker.QueueName, queue.Payload{LeadID: l.ID}, queue.DefaultEnqueueOptions()); err != nil {
		s.logger.Error("enqueue failed", "leadId", l.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, ingestResponse{ID: l.ID, IdempotencyKey: l.IdempotencyKey, Status: string(l.Status)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func parseAddr(rawURL string) string {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return rawURL
	}
	return opts.Addr
}
