// Package api wires together all HTTP routes for the organization directory.
//
// Every resource route is mounted at the root and is unauthenticated; the service is
// meant to sit behind a gateway that handles identity. System routes (/health, /ready,
// /version, /stats) share the same engine so probes exercise the full middleware chain.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/org-directory/org-directory/internal/api/admin"
	"github.com/org-directory/org-directory/internal/config"
	"github.com/org-directory/org-directory/internal/crypto"
	"github.com/org-directory/org-directory/internal/db"
	"github.com/org-directory/org-directory/internal/jobs"
	"github.com/org-directory/org-directory/internal/middleware"
	"github.com/org-directory/org-directory/internal/services"
	"github.com/org-directory/org-directory/internal/validation"
)

const (
	// Version is reported by GET /, GET /version and `server version`
	Version = "1.0.0"
	// APIVersion is the version of the route layout
	APIVersion = "v1"
)

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	statsJob *jobs.DirectoryStatsJob
	limiter  middleware.Limiter
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.statsJob != nil {
		bg.statsJob.Stop()
	}
	if bg.limiter != nil {
		bg.limiter.Stop()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, database *sql.DB) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()
	bg := &BackgroundServices{}

	hasher, err := crypto.NewPasswordHasher(cfg.Security.PasswordHashing.Algorithm)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize password hasher: %w", err)
	}

	// Initialize services
	store := db.NewStoreFromSQL(database)
	v := validation.New()
	orgService := services.NewOrganizationService(store, v)
	deptService := services.NewDepartmentService(store, v)
	userService := services.NewUserService(store, hasher, v)
	roleService := services.NewRoleService(store, v)

	// Entity gauges are only worth sampling when something scrapes them
	if cfg.Telemetry.Metrics.Enabled {
		bg.statsJob = jobs.NewDirectoryStatsJob(map[string]jobs.EntityCounter{
			"organizations": orgService,
			"departments":   deptService,
			"users":         userService,
			"roles":         roleService,
		}, cfg.Telemetry.StatsInterval)
		bg.statsJob.Start(context.Background())
		slog.Info("directory stats job started", "interval", cfg.Telemetry.StatsInterval)
	}

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	if cfg.Security.RateLimiting.Enabled {
		limiter, err := middleware.NewLimiter(cfg.Security.RateLimiting)
		if err != nil {
			bg.Shutdown()
			return nil, nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
		}
		bg.limiter = limiter
		router.Use(middleware.RateLimitMiddleware(limiter))
		slog.Info("rate limiting enabled",
			"backend", limiter.Backend(),
			"requests_per_minute", limiter.Limit())
	}

	// System endpoints
	router.GET("/", bannerHandler())
	router.GET("/health", healthCheckHandler(database))
	router.GET("/ready", readinessHandler(database, bg.limiter))
	router.GET("/version", versionHandler())

	statsHandler := admin.NewStatsHandler(orgService, deptService, userService, roleService)
	router.GET("/stats", statsHandler.GetStatsHandler())

	orgHandlers := admin.NewOrganizationHandlers(orgService, deptService)
	orgs := router.Group("/organizations")
	{
		orgs.GET("", orgHandlers.ListOrganizationsHandler())
		orgs.POST("", orgHandlers.CreateOrganizationHandler())
		orgs.GET("/:id", orgHandlers.GetOrganizationHandler())
		orgs.GET("/:id/detail", orgHandlers.GetOrganizationDetailHandler())
		orgs.GET("/:id/departments", orgHandlers.ListOrganizationDepartmentsHandler())
		orgs.PUT("/:id", orgHandlers.UpdateOrganizationHandler())
		orgs.PATCH("/:id", orgHandlers.UpdateOrganizationHandler())
		orgs.DELETE("/:id", orgHandlers.DeleteOrganizationHandler())
	}

	deptHandlers := admin.NewDepartmentHandlers(deptService)
	depts := router.Group("/departments")
	{
		depts.GET("", deptHandlers.ListDepartmentsHandler())
		depts.POST("", deptHandlers.CreateDepartmentHandler())
		depts.GET("/:id", deptHandlers.GetDepartmentHandler())
		depts.GET("/:id/children", deptHandlers.ListChildrenHandler())
		depts.GET("/:id/subtree", deptHandlers.GetSubtreeHandler())
		depts.PUT("/:id", deptHandlers.UpdateDepartmentHandler())
		depts.PATCH("/:id", deptHandlers.UpdateDepartmentHandler())
		depts.DELETE("/:id", deptHandlers.DeleteDepartmentHandler())
	}

	userHandlers := admin.NewUserHandlers(userService)
	users := router.Group("/users")
	{
		users.GET("", userHandlers.ListUsersHandler())
		users.POST("", userHandlers.CreateUserHandler())
		users.GET("/:id", userHandlers.GetUserHandler())
		users.PUT("/:id", userHandlers.UpdateUserHandler())
		users.PATCH("/:id", userHandlers.UpdateUserHandler())
		users.DELETE("/:id", userHandlers.DeleteUserHandler())
		users.PUT("/:id/roles/:role_id", userHandlers.AssignRoleHandler())
		users.DELETE("/:id/roles/:role_id", userHandlers.RevokeRoleHandler())
	}

	roleHandlers := admin.NewRoleHandlers(roleService)
	roles := router.Group("/roles")
	{
		roles.GET("", roleHandlers.ListRolesHandler())
		roles.POST("", roleHandlers.CreateRoleHandler())
		roles.GET("/:id", roleHandlers.GetRoleHandler())
		roles.GET("/:id/users", roleHandlers.ListRoleUsersHandler())
		roles.PUT("/:id", roleHandlers.UpdateRoleHandler())
		roles.PATCH("/:id", roleHandlers.UpdateRoleHandler())
		roles.DELETE("/:id", roleHandlers.DeleteRoleHandler())
	}

	mountFrontend(router, cfg.Server.FrontendDir)

	return router, bg, nil
}

// mountFrontend serves dir under /frontend when it exists. The static files get the
// browser-oriented security headers instead of the strict API set.
func mountFrontend(router *gin.Engine, dir string) {
	if dir == "" {
		return
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		slog.Debug("frontend directory not mounted", "dir", dir)
		return
	}
	frontend := router.Group("/frontend",
		middleware.SecurityHeadersMiddleware(middleware.FrontendSecurityHeadersConfig()))
	frontend.Static("/", dir)
	slog.Info("serving frontend", "dir", dir, "path", "/frontend")
}

// bannerHandler answers GET / so a browser or load balancer sees a live service
func bannerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Organization directory is running",
			"version": Version,
		})
	}
}

// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// pinger is implemented by limiter backends that depend on an external service
type pinger interface {
	Ping(ctx context.Context) error
}

// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks the Redis rate limit backend
// when one is configured.
func readinessHandler(db *sql.DB, limiter middleware.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if p, ok := limiter.(pinger); ok {
			if err := p.Ping(c.Request.Context()); err != nil {
				checks["rate_limiter"] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  "rate limit backend not ready",
				})
				return
			}
			checks["rate_limiter"] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": APIVersion,
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logRequest(c, time.Since(start), path, query)
	}
}

// logRequest emits one slog record per request. The global handler configured by
// telemetry.SetupLogger decides between JSON and text output.
func logRequest(c *gin.Context, latency time.Duration, path, query string) {
	level := slog.LevelInfo
	if c.Writer.Status() >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.LogAttrs(
		c.Request.Context(),
		level,
		"http request",
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", middleware.RequestID(c)),
		slog.String("user_agent", c.Request.UserAgent()),
	)
}

var defaultCORSMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := cfg.Security.CORS.AllowedMethods
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	allowMethods := strings.Join(methods, ", ")

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", allowMethods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
