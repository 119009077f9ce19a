package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/communitas-hq/partner-research/internal/adapter"
	"github.com/communitas-hq/partner-research/internal/aggregate"
	"github.com/communitas-hq/partner-research/internal/model"
	"github.com/communitas-hq/partner-research/internal/research"
	"github.com/communitas-hq/partner-research/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin HTTP server for research requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		orch, err := buildOrchestrator(st)
		if err != nil {
			return err
		}

		runner := research.NewRunner(orch, cfg.Research.Runner())
		defer runner.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(st, orch, runner),
		}

		// Graceful shutdown: stop accepting, then drain in-flight requests.
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(st store.Store, orch *research.Orchestrator, runner *research.Runner) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"breakers": orch.BreakerStates(),
		})
	})

	r.Post("/research", handleResearch(st, runner))
	r.Get("/profiles/{id}", handleGetProfile(st))
	r.Get("/profiles/{id}/context", handleGetContext(st))

	return r
}

// handleResearch accepts a research request and hands it to the background
// runner. The response is always 202 on acceptance; callers poll the profile.
func handleResearch(st store.Store, runner *research.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			SubjectID       string `json:"subject_id"`
			Name            string `json:"name"`
			Organization    string `json:"organization"`
			ProfileURL      string `json:"profile_url"`
			PartnerCategory string `json:"partner_category"`
			CrawlCitations  bool   `json:"crawl_citations"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.SubjectID == "" {
			writeError(w, http.StatusBadRequest, "subject_id is required")
			return
		}

		var category model.PartnerCategory
		if body.PartnerCategory != "" {
			cat, err := parseCategory(body.PartnerCategory)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			category = cat
		}

		now := time.Now().UTC()
		subject, err := st.GetSubject(req.Context(), body.SubjectID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "load subject failed")
			return
		}
		if subject == nil {
			subject = &model.Subject{ID: body.SubjectID, CreatedAt: now}
		}
		if body.Name != "" {
			subject.Name = body.Name
		}
		if body.Organization != "" {
			subject.Organization = body.Organization
		}
		if body.ProfileURL != "" {
			subject.ProfileURL = body.ProfileURL
		}
		if category != "" {
			subject.PartnerCategory = category
		}
		subject.UpdatedAt = now

		if err := st.UpsertSubject(req.Context(), *subject); err != nil {
			zap.L().Error("subject upsert failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "save subject failed")
			return
		}

		hints := adapter.Hints{
			Name:            subject.Name,
			Organization:    subject.Organization,
			ProfileURL:      subject.ProfileURL,
			PartnerCategory: subject.PartnerCategory,
		}
		if !runner.Submit(body.SubjectID, hints, adapter.Options{CrawlCitations: body.CrawlCitations}) {
			writeError(w, http.StatusServiceUnavailable, "research queue full; retry later")
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":     "accepted",
			"subject_id": body.SubjectID,
		})
	}
}

func handleGetProfile(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		subjectID := chi.URLParam(req, "id")

		profile, err := st.GetAggregatedProfile(req.Context(), subjectID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "load profile failed")
			return
		}
		if profile == nil {
			writeError(w, http.StatusNotFound, "no profile for subject")
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

func handleGetContext(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		subjectID := chi.URLParam(req, "id")

		profile, err := st.GetAggregatedProfile(req.Context(), subjectID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "load profile failed")
			return
		}
		if profile == nil {
			writeError(w, http.StatusNotFound, "no profile for subject")
			return
		}

		records, err := st.ListRecords(req.Context(), subjectID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list records failed")
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, aggregate.RenderAIContext(profile, records))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
