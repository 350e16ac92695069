package api

import (
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/ledgerhouse/checkbook/pkg/accounts"
	"github.com/ledgerhouse/checkbook/pkg/audit"
	"github.com/ledgerhouse/checkbook/pkg/auth"
	"github.com/ledgerhouse/checkbook/pkg/httputil"
	"github.com/ledgerhouse/checkbook/pkg/middleware"
	"github.com/ledgerhouse/checkbook/pkg/observability"
	"github.com/ledgerhouse/checkbook/pkg/permissions"
	"github.com/ledgerhouse/checkbook/pkg/users"
)

// Server is the checkbook API server. It wires the permission, account,
// audit, and auth services behind one router.
type Server struct {
	router *mux.Router
}

// Options configures optional server behavior.
type Options struct {
	// Metrics instruments requests when non-nil.
	Metrics *observability.Metrics
	// RequestLogger logs one line per request when non-nil.
	RequestLogger *logrus.Logger
	// MaxBodyBytes caps request bodies; 0 means 1 MiB.
	MaxBodyBytes int64
}

// NewServer creates the API server with all routes registered.
func NewServer(db *sql.DB, recorder audit.Recorder, logger *observability.Logger, opts Options) *Server {
	permStore := permissions.NewStore(db)
	userStore := users.NewStore(db)
	tokenManager := auth.NewTokenManager(db)

	grantService := permissions.NewGrantService(permStore, userStore, recorder, logger)
	requestService := permissions.NewRequestService(permStore, recorder, logger)
	accountService := accounts.NewService(permStore, accounts.NewStore(db), recorder, logger)
	auditStore := audit.NewStore(db)

	router := mux.NewRouter()
	apiRouter := router.PathPrefix("/api/v1").Subrouter()

	// Authentication is optional at the middleware level; each handler
	// demands an identity except open registration.
	authMiddleware := middleware.NewAuthMiddleware(tokenManager, true)

	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	chain := []mux.MiddlewareFunc{
		middleware.RequestID,
		httputil.RecoveryMiddleware,
		httputil.MaxBytesMiddleware(maxBody),
		authMiddleware.Handler,
	}
	if opts.RequestLogger != nil {
		chain = append(chain, middleware.RequestLogging(opts.RequestLogger))
	}
	if opts.Metrics != nil {
		chain = append(chain, opts.Metrics.Middleware)
	}
	apiRouter.Use(chain...)

	NewAuthHandlers(userStore, tokenManager).RegisterRoutes(apiRouter)
	NewAccountHandlers(accountService).RegisterRoutes(apiRouter)
	NewPermissionHandlers(grantService, requestService).RegisterRoutes(apiRouter)
	NewAuditHandlers(auditStore, permissions.NewValidator(permStore)).RegisterRoutes(apiRouter)

	return &Server{router: router}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying router for additional registrations.
func (s *Server) Router() *mux.Router {
	return s.router
}
