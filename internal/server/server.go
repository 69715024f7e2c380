package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/spf13/afero"

	"github.com/jpequegn/ttsdispatch/internal/config"
	"github.com/jpequegn/ttsdispatch/internal/controller"
	"github.com/jpequegn/ttsdispatch/internal/dispatcher"
	"github.com/jpequegn/ttsdispatch/internal/executor"
	"github.com/jpequegn/ttsdispatch/internal/history"
	"github.com/jpequegn/ttsdispatch/internal/metrics"
	"github.com/jpequegn/ttsdispatch/internal/registry"
	"github.com/jpequegn/ttsdispatch/internal/workerpool"
)

// batchRuntime bundles the non-registry-owned collaborators for one
// batch: its worker pool, adaptive controller, executor, dispatcher,
// and the task-id -> filename map the dispatcher needs to resolve
// source paths. Kept alive for the lifetime of the process so
// /retry_failed can re-spawn a finished batch's dispatcher.
type batchRuntime struct {
	pool       *workerpool.Pool
	adaptive   *controller.Adaptive
	exec       *executor.Executor
	dispatcher *dispatcher.Dispatcher
	filenames  map[string]string
	startedAt  time.Time
}

// Server is the HTTP control plane over one shared registry and the
// per-batch dispatch runtimes it creates on upload.
type Server struct {
	fs       afero.Fs
	reg      *registry.Registry
	runner   *dispatcher.Runner
	cfg      *config.Store
	metrics  *metrics.Collector
	ledger   *history.Ledger // nil disables the audit ledger
	global   *dispatcher.GlobalLimiter
	retry    *controller.RetryPolicy
	sizeCaps executor.SizeThresholds

	mu       sync.Mutex
	runtimes map[uuid.UUID]*batchRuntime
}

// Options bundles Server's constructor dependencies.
type Options struct {
	Fs      afero.Fs
	Config  *config.Store
	Metrics *metrics.Collector
	Ledger  *history.Ledger // nil disables the history ledger
}

// New builds a Server ready to have its routes registered.
func New(opts Options) *Server {
	cfg := opts.Config.Get()
	return &Server{
		fs:       opts.Fs,
		reg:      registry.New(),
		runner:   dispatcher.NewRunner(),
		cfg:      opts.Config,
		metrics:  opts.Metrics,
		ledger:   opts.Ledger,
		global:   dispatcher.NewGlobalLimiter(cfg.GlobalConcurrencyLimit),
		retry:    controller.NewRetryPolicy(),
		sizeCaps: executor.SizeThresholds{MinBytes: cfg.MinAudioSizeBytes, BytesPerChar: cfg.MinAudioBytesPerChar},
		runtimes: make(map[uuid.UUID]*batchRuntime),
	}
}

// Routes builds the mux.Router with every control-plane endpoint
// mounted, mirroring the route-registration style of the pack's
// gorilla/mux webui servers.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/progress/{batchID}", s.handleProgress).Methods(http.MethodGet)
	r.HandleFunc("/server_status/{batchID}", s.handleServerStatus).Methods(http.MethodGet)
	r.HandleFunc("/retry_failed/{batchID}", s.handleRetryFailed).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/continue/{folder}", s.handleContinue).Methods(http.MethodPost)
	api.HandleFunc("/folders", s.handleFolders).Methods(http.MethodGet)
	api.HandleFunc("/download/{folder}", s.handleDownload).Methods(http.MethodGet)
	api.HandleFunc("/delete/{folder}", s.handleDelete).Methods(http.MethodDelete)
	api.HandleFunc("/cancel/{batchID}", s.handleCancel).Methods(http.MethodPost)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	return r
}

func (s *Server) runtimeFor(batchID uuid.UUID) (*batchRuntime, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.runtimes[batchID]
	return rt, ok
}

// watchCompletion appends a history-ledger row once a batch's
// dispatcher exits, if a ledger is configured. Runs on its own
// goroutine so /upload never blocks on it.
func (s *Server) watchCompletion(ctx context.Context, batchID uuid.UUID, h *dispatcher.Handle, startedAt time.Time) {
	go func() {
		_ = h.Wait()
		if s.ledger == nil {
			return
		}
		b, err := s.reg.Batch(batchID)
		if err != nil {
			slog.Warn("server: batch vanished before history could be recorded", "batch", batchID, "error", err)
			return
		}
		summary := history.SummaryFromBatch(b, startedAt, time.Now())
		if err := s.ledger.Record(summary); err != nil {
			slog.Warn("server: failed to record batch history", "batch", batchID, "error", err)
		}
	}()
}
