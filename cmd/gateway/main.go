// Command gateway runs the legacy-use session gateway: store, pool,
// lifecycle manager, health monitor, and the VNC proxy path wired
// together behind a single HTTP/WebSocket listener, plus the shared VNC
// gateway's loopback-only internal relay listener.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/legacy-use/gateway/internal/bridge"
	"github.com/legacy-use/gateway/internal/cache"
	"github.com/legacy-use/gateway/internal/config"
	apperrors "github.com/legacy-use/gateway/internal/errors"
	"github.com/legacy-use/gateway/internal/gateway"
	"github.com/legacy-use/gateway/internal/health"
	"github.com/legacy-use/gateway/internal/lifecycle"
	"github.com/legacy-use/gateway/internal/logger"
	"github.com/legacy-use/gateway/internal/middleware"
	"github.com/legacy-use/gateway/internal/orchestrator"
	"github.com/legacy-use/gateway/internal/pool"
	"github.com/legacy-use/gateway/internal/store"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	logger.Initialize(cfg.LogLevel, cfg.LogPretty)
	log := logger.GetLogger()

	log.Info().Msg("starting legacy-use gateway")

	// --- Session store ---
	sessionStore, err := store.New(store.Config{
		Host:     cfg.StoreHost,
		Port:     cfg.StorePort,
		User:     cfg.StoreUser,
		Password: cfg.StorePassword,
		DBName:   cfg.StoreDBName,
		SSLMode:  cfg.StoreSSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to session store")
	}
	defer sessionStore.Close()

	if err := sessionStore.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate session store")
	}

	// --- Orchestrator adapter ---
	adapter, clusterBackend, err := newOrchestratorAdapter(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize orchestrator adapter")
	}

	serviceNames, err := orchestrator.LoadServiceNameTable(cfg.ServiceNameMapFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load service name table")
	}

	// --- Snapshot cache (optional) ---
	snapshotCache, err := cache.New(cache.Config{
		Host:     cfg.CacheHost,
		Port:     cfg.CachePort,
		Password: cfg.CachePassword,
		DB:       cfg.CacheDB,
		Enabled:  cfg.CacheEnabled,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize snapshot cache, continuing without caching")
		snapshotCache, _ = cache.New(cache.Config{Enabled: false})
	} else if cfg.CacheEnabled {
		log.Info().Msg("snapshot cache enabled")
	}
	defer snapshotCache.Close()

	// --- Container pool ---
	containerPool := pool.New(adapter, snapshotCache, serviceNames)

	// --- Bridge table ---
	bridgeTable := bridge.NewTable()

	// --- Lifecycle manager ---
	manager := lifecycle.New(sessionStore, containerPool, adapter, bridgeTable)

	// --- Health monitor ---
	monitor := health.New(containerPool, sessionStore, adapter, health.Config{
		LogRetentionDays: cfg.LogRetentionDays,
	})
	monitorCtx, monitorCancel := context.WithCancel(context.Background())
	if err := monitor.Start(monitorCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to start health monitor")
	}

	// --- Gateway handlers ---
	hostResolver, err := gateway.NewHostResolver(cfg.PodIPCIDR, serviceNames)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse POD_IP_CIDR")
	}

	internalGatewayURL := fmt.Sprintf("ws://%s/websockify", cfg.InternalBindAddr)
	vncProxy := gateway.NewVNCProxyHandler(sessionStore, hostResolver, manager, gateway.Config{
		InternalGatewayURL: internalGatewayURL,
		Namespace:          firstNonEmptyStr(cfg.KubeNamespace, gateway.DefaultNamespace),
	})
	staticProxy := gateway.NewStaticProxy(sessionStore, bridgeTable.Ports())
	poolAdmin := gateway.NewPoolAdmin(containerPool)
	initStatus := gateway.NewInitStatus(cfg.APIProvider)

	sharedGateway := gateway.NewSharedGateway(bridgeTable, bridge.GenericConfig{
		AdapterPath: cfg.VNCAdapterPath,
		WebRoot:     cfg.VNCWebRoot,
	}, clusterBackend, cfg.InternalAllowedOrigins...)

	router := newRouter(vncProxy, staticProxy, poolAdmin, initStatus, sessionStore, cfg)
	internalRouter := newInternalRouter(sharedGateway)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	// internalSrv serves the shared VNC gateway: bound to
	// GATEWAY_BIND_ADDR, loopback-only by default (127.0.0.1:8765).
	internalSrv := &http.Server{
		Addr:         cfg.InternalBindAddr,
		Handler:      internalRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // long-lived WebSocket relay
		IdleTimeout:  0,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("gateway server failed")
		}
	}()

	go func() {
		log.Info().Str("addr", internalSrv.Addr).Msg("internal shared gateway listening")
		if err := internalSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("internal gateway server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	log.Info().Msg("shutting down HTTP servers")
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("gateway server forced to shutdown")
	}
	if err := internalSrv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("internal gateway server forced to shutdown")
	}

	log.Info().Msg("closing bridges and releasing pool allocations")
	bridgeTable.Shutdown()
	containerPool.Shutdown()

	monitorCancel()
	monitor.Stop()

	log.Info().Msg("graceful shutdown complete")
}

// newOrchestratorAdapter selects the backend via CONTAINER_ORCHESTRATOR
// (docker|kubernetes). The second return value is non-nil only in the
// kubernetes case, since only that backend can bridge VM VNC.
func newOrchestratorAdapter(cfg *config.Config) (orchestrator.Adapter, gateway.VMBridgeFactory, error) {
	switch cfg.Orchestrator {
	case "kubernetes", "k8s":
		cluster, err := orchestrator.NewClusterBackend(cfg.KubeNamespace)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize cluster backend: %w", err)
		}
		return cluster, cluster, nil
	default:
		backend, err := orchestrator.NewContainerEngineBackend(cfg.ComposeProject)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize container engine backend: %w", err)
		}
		return backend, nil, nil
	}
}

// healthHandler serves GET /health: pings the session store and reports
// the {status, database} shape the viewer and deployment probes expect.
func healthHandler(sessionStore *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := sessionStore.Ping(ctx); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"status":   "unhealthy",
				"database": "disconnected",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"database": "connected",
		})
	}
}

func newRouter(vncProxy *gateway.VNCProxyHandler, staticProxy *gateway.StaticProxy, poolAdmin *gateway.PoolAdmin, initStatus *gateway.InitStatus, sessionStore *store.Store, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(apperrors.Recovery())
	router.Use(middleware.StructuredLogger())
	router.Use(middleware.Timeout(middleware.DefaultTimeoutConfig()))
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	router.Use(middleware.SecurityHeaders())

	inputValidator := middleware.NewInputValidator()
	router.Use(inputValidator.Middleware())
	router.Use(inputValidator.SanitizeJSONMiddleware())
	router.Use(middleware.DefaultSizeLimiter())
	router.Use(apperrors.ErrorHandler())

	// 10 req/s sustained, burst of 20, per caller IP: enough for a pool
	// dashboard polling /containers/status every few seconds plus the
	// occasional allocate/release burst, tight enough to blunt a runaway
	// allocate loop.
	poolRateLimiter := middleware.NewRateLimiter(10, 20)

	router.GET("/health", healthHandler(sessionStore))
	router.GET("/api/init-status", initStatus.Handle)

	// A single wildcard route dispatches between the WebSocket upgrade and
	// the static viewer asset proxy: gin's router rejects a static sibling
	// ("websockify") coexisting with a catch-all ("*path") at the same
	// tree position, so the split happens inside vncRoute instead.
	router.GET("/vnc/:session_id/*path", vncRoute(vncProxy, staticProxy))

	containers := router.Group("/containers")
	containers.Use(poolRateLimiter.Middleware())
	{
		containers.GET("", poolAdmin.List)
		containers.GET("/status", poolAdmin.Status)
		containers.POST("/:id/allocate", poolAdmin.Allocate)
		containers.POST("/:id/release", poolAdmin.Release)
		containers.POST("/refresh", poolAdmin.Refresh)
	}

	return router
}

// newInternalRouter builds the shared gateway's router: a single route
// bound to loopback only, so no auth/CORS/rate-limit middleware is
// layered on top of it.
func newInternalRouter(sharedGateway *gateway.SharedGateway) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(apperrors.Recovery())
	router.GET("/websockify", sharedGateway.Handle)
	return router
}

// vncRoute dispatches GET /vnc/:session_id/*path: the WebSocket upgrade
// path goes to the VNC proxy, everything else to the static viewer asset
// proxy.
func vncRoute(vncProxy *gateway.VNCProxyHandler, staticProxy *gateway.StaticProxy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Param("path") == "/websockify" {
			vncProxy.Handle(c)
			return
		}
		staticProxy.Handle(c)
	}
}

func firstNonEmptyStr(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
