package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/EhsanAmini770/charity-info-sub000/internal/blobstore"
	"github.com/EhsanAmini770/charity-info-sub000/internal/config"
	"github.com/EhsanAmini770/charity-info-sub000/internal/store"
)

const (
	apiTokenEnvKey         = "CHARITY_API_TOKEN"
	adminTokenEnvKey       = "CHARITY_ADMIN_TOKEN"
	allowRemoteEnvKey      = "CHARITY_ALLOW_REMOTE"
	readHeaderTimeout      = 5 * time.Second
	readTimeout            = 5 * time.Minute
	writeTimeout           = 10 * time.Minute
	idleTimeout            = 60 * time.Second
	shutdownTimeout        = 15 * time.Second
	uploadConcurrencyLimit = 8
	operatorMaxFailures    = 5
	operatorFailureWindow  = 5 * time.Minute
	operatorLockoutPenalty = 15 * time.Minute
)

type storeInfoReader interface {
	StoreInfo(ctx context.Context) (*store.StoreInfo, error)
}

// Deps are the persistence collaborators the server is built on.
type Deps struct {
	Articles    store.ArticleStore
	Attachments store.AttachmentStore
	Orphans     store.OrphanStore
	Operators   store.OperatorStore
	Info        storeInfoReader
	Blobs       *blobstore.Set
}

// StoreDeps wires every store role to the one SQLite store.
func StoreDeps(st *store.Store, blobs *blobstore.Set) Deps {
	return Deps{
		Articles:    st,
		Attachments: st,
		Orphans:     st,
		Operators:   st,
		Info:        st,
		Blobs:       blobs,
	}
}

// Server wraps HTTP handlers for the attachment API.
type Server struct {
	addr              string
	dbPath            string
	deps              Deps
	attachmentService *AttachmentService
	reconcileService  *ReconcileService
	scheduler         *ReconcileScheduler
	logger            *slog.Logger
	apiToken          string
	adminToken        string
	uploadLimiter     chan struct{}
	lockout           *operatorLockout

	maxUploadBytes     int64
	multipartMaxMemory int64
}

// New creates a new server instance. cfg may be nil, in which case defaults apply.
func New(addr string, deps Deps, cfg *config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}

	attachments := NewAttachmentService(deps.Articles, deps.Attachments, deps.Blobs, logger)
	attachments.ConfigurePolicy(cfg.Attachments.AllowedMediaTypes, cfg.Attachments.MaxInlineTextBytes)

	reconcile := NewReconcileService(deps.Articles, deps.Attachments, deps.Orphans, deps.Blobs, attachments, logger)
	reconcile.ConfigurePolicy(cfg.Reconcile.BlobGracePeriod, cfg.Reconcile.ProcessLimit)
	attachments.SetMissingBlobReporter(reconcile)

	watchDir := ""
	if cfg.Reconcile.WatchUploads {
		watchDir = cfg.Storage.UploadsDir
	}

	s := &Server{
		addr:               addr,
		dbPath:             cfg.DBPath,
		deps:               deps,
		attachmentService:  attachments,
		reconcileService:   reconcile,
		scheduler:          NewReconcileScheduler(reconcile, cfg.Reconcile.ScanInterval, watchDir, cfg.Reconcile.WatchDebounce, logger),
		logger:             logger,
		apiToken:           strings.TrimSpace(os.Getenv(apiTokenEnvKey)),
		adminToken:         strings.TrimSpace(os.Getenv(adminTokenEnvKey)),
		uploadLimiter:      make(chan struct{}, uploadConcurrencyLimit),
		lockout:            newOperatorLockout(operatorMaxFailures, operatorFailureWindow, operatorLockoutPenalty),
		maxUploadBytes:     cfg.Attachments.MaxUploadBytes,
		multipartMaxMemory: cfg.Attachments.MultipartMaxMemory,
	}
	if s.maxUploadBytes <= 0 {
		s.maxUploadBytes = config.DefaultAttachmentMaxUploadBytes
	}
	if s.multipartMaxMemory <= 0 {
		s.multipartMaxMemory = config.DefaultAttachmentMultipartMemory
	}
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.withRequestLogging(s.withAuth(s.routes()))
}

// ListenAndServe starts the HTTP server and blocks until it fails.
func (s *Server) ListenAndServe() error {
	return s.Serve(context.Background())
}

// Serve runs the HTTP server and the reconcile scheduler until ctx is done,
// then shuts both down.
func (s *Server) Serve(ctx context.Context) error {
	s.log().Info("starting server", "addr", s.addr)
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	schedCtx, cancelSched := context.WithCancel(ctx)
	defer cancelSched()
	var wg sync.WaitGroup
	if s.scheduler.Enabled() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.scheduler.Run(schedCtx); err != nil {
				s.log().Error("reconcile scheduler stopped", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		s.log().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		err = server.Shutdown(shutdownCtx)
		cancel()
	}

	cancelSched()
	wg.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) acquireLimiter(limiter chan struct{}, w http.ResponseWriter, r *http.Request, name string) bool {
	if limiter == nil {
		return true
	}
	select {
	case limiter <- struct{}{}:
		return true
	default:
		err := apiError{
			status:  http.StatusTooManyRequests,
			code:    "resource_exhausted",
			errCode: ErrCodeResourceExhausted,
			err:     fmt.Errorf("too many concurrent %s requests", name),
		}
		s.writeErrorReq(w, r, http.StatusTooManyRequests, err)
		return false
	}
}

func (s *Server) releaseLimiter(limiter chan struct{}) {
	if limiter == nil {
		return
	}
	select {
	case <-limiter:
	default:
	}
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
