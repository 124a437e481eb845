package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/router-for-me/CreditEngine/internal/accounting"
	"github.com/router-for-me/CreditEngine/internal/config"
	"github.com/router-for-me/CreditEngine/internal/credits"
	"github.com/router-for-me/CreditEngine/internal/db"
	internalhttp "github.com/router-for-me/CreditEngine/internal/http/api/admin"
	"github.com/router-for-me/CreditEngine/internal/http/api/front"
	"github.com/router-for-me/CreditEngine/internal/metrics"
	"github.com/router-for-me/CreditEngine/internal/ratelimit"
	internalsettings "github.com/router-for-me/CreditEngine/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn.WithContext(ctx))
}

// ConfigureLogging applies the configured logrus level and format.
func ConfigureLogging(cfg config.LoggingConfig) {
	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level, errLevel := log.ParseLevel(cfg.Level)
	if errLevel != nil {
		log.WithError(errLevel).Warnf("unknown log level %q, using info", cfg.Level)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

// RunServer boots the accounting API with database-backed components and
// blocks until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.AppConfig, defaultPort int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)

	logCfg, _ := config.LoadLoggingConfig(configPath)
	ConfigureLogging(logCfg)

	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errRefresh := internalsettings.Refresh(ctx, conn); errRefresh != nil {
		return fmt.Errorf("load settings: %w", errRefresh)
	}
	go internalsettings.Poll(ctx, conn, 0)

	jwtConfig, errJWT := config.LoadJWTConfig(configPath)
	if errJWT != nil {
		return errJWT
	}
	engineCfg, errEngine := config.LoadEngineConfig(configPath)
	if errEngine != nil {
		return errEngine
	}
	throttleCfg, errThrottle := config.LoadThrottleConfig(configPath)
	if errThrottle != nil {
		return errThrottle
	}

	m := metrics.Get()
	throttle := ratelimit.NewManager(ratelimit.NewSettingsProvider(throttleCfg), nil, nil)
	defer throttle.Close()

	ledger := credits.NewLedger(conn, credits.Options{ExpiryWarningDays: engineCfg.ExpiryWarningDays, Metrics: m})
	engine := accounting.NewEngine(conn, accounting.Options{
		Config:   engineCfg,
		Ledger:   ledger,
		Throttle: throttle,
		Metrics:  m,
	})

	port := config.LoadServerPort(configPath, defaultPort)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewRouter(conn, jwtConfig, engine),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("starting credit engine on :%d with config=%s", port, configPath)
		if errServe := srv.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
		}
		close(errCh)
	}()

	select {
	case errServe := <-errCh:
		return errServe
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("shutdown: %w", errShutdown)
	}
	log.Info("credit engine stopped")
	return nil
}

// NewRouter builds the gin engine with health, metrics, front and admin routes.
func NewRouter(conn *gorm.DB, jwtConfig config.JWTConfig, engine *accounting.Engine) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		sqlDB, errDB := conn.DB()
		if errDB == nil {
			errDB = sqlDB.PingContext(c.Request.Context())
		}
		if errDB != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	front.RegisterFrontRoutes(r, conn, jwtConfig, engine)
	internalhttp.RegisterAdminRoutes(r, conn, jwtConfig, engine)
	return r
}

// requestLogger logs each request through logrus.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Error("http request")
			return
		}
		entry.Debug("http request")
	}
}
