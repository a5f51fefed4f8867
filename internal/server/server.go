package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"errata-harvester/internal/result"
	"errata-harvester/internal/store"
	"errata-harvester/internal/task"
)

type Loader interface {
	Load() store.Collection
}

type HarvestFunc func(ctx context.Context) (*task.Run, error)

type Server struct {
	store    Loader
	harvest  HarvestFunc
	gatherer prometheus.Gatherer
	logger   *zap.Logger

	// harvests outlive their request but not the server
	base    context.Context
	running sync.Mutex
}

func New(st Loader, harvest HarvestFunc, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{store: st, harvest: harvest, gatherer: gatherer, logger: logger, base: context.Background()}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/advisories", s.handleList)
	r.Get("/advisories/{id}", s.handleGet)
	r.Get("/export", s.handleExport)
	r.Post("/collect", s.handleCollect)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return r
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.base = ctx
	srv := &http.Server{Addr: addr, Handler: s.Routes(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	s.logger.Info("serving advisories", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	all := s.store.Load().Sorted()
	if sev := r.URL.Query().Get("severity"); sev != "" {
		filtered := all[:0]
		for _, a := range all {
			if strings.EqualFold(a.Severity, sev) {
				filtered = append(filtered, a)
			}
		}
		all = filtered
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, ok := s.store.Load()[id]
	if !ok {
		writeErr(w, http.StatusNotFound, errors.New("advisory not found"))
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	rows := s.store.Load().Sorted()
	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "", "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		if err := result.WriteCSV(w, rows); err != nil {
			s.logger.Warn("csv export failed", zap.Error(err))
		}
	case "pdf":
		w.Header().Set("Content-Type", "application/pdf")
		if err := result.WritePDF(w, rows); err != nil {
			s.logger.Warn("pdf export failed", zap.Error(err))
		}
	default:
		writeErr(w, http.StatusBadRequest, errors.New("unknown format"))
	}
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	if s.harvest == nil {
		writeErr(w, http.StatusNotImplemented, errors.New("harvest not available"))
		return
	}
	// one harvest at a time
	if !s.running.TryLock() {
		writeErr(w, http.StatusConflict, errors.New("harvest already running"))
		return
	}
	defer s.running.Unlock()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	stop := context.AfterFunc(s.base, cancel)
	defer stop()

	run, err := s.harvest(ctx)
	if err != nil {
		writeErr(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":  run.State,
		"seen":   run.Seen,
		"known":  run.Known,
		"added":  run.Added,
		"failed": run.Failed,
		"report": run.ReportPath,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
