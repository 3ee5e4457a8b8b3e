package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"fhirnlp/internal/config"
	"fhirnlp/internal/handler"
	"fhirnlp/internal/middleware"
	"fhirnlp/internal/model"
	"fhirnlp/internal/repository"
	"fhirnlp/internal/rules"
	"fhirnlp/internal/service"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:          "fhirnlp",
		Short:        "Natural language to FHIR query service",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(queryCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func queryCmd() *cobra.Command {
	var (
		seed int64
		now  string
	)

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run one query through the pipeline and print the result as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &model.QueryRequest{Query: strings.Join(args, " ")}
			if cmd.Flags().Changed("seed") {
				req.Seed = &seed
			}
			return runQuery(cmd.Context(), cmd.OutOrStdout(), req, now)
		},
	}

	cmd.Flags().Int64Var(&seed, "seed", 0, "seed for the mock bundle")
	cmd.Flags().StringVar(&now, "now", "", "reference date as YYYY-MM-DD (default today)")
	return cmd
}

func runQuery(ctx context.Context, out io.Writer, req *model.QueryRequest, now string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log.Logger = newLogger(cfg.Logging, os.Stderr)

	var opts []service.Option
	if now != "" {
		ref, err := time.Parse("2006-01-02", now)
		if err != nil {
			return fmt.Errorf("invalid --now %q: %w", now, err)
		}
		opts = append(opts, service.WithClock(func() time.Time { return ref }))
	}

	svc, _, err := newQueryService(cfg, opts...)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	resp, err := svc.Process(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := newLogger(cfg.Logging, os.Stdout)
	log.Logger = logger

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Msg("FHIR NLP query service")

	gin.SetMode(cfg.Server.GinMode)

	// Optional query log
	var opts []service.Option
	if cfg.PostgreSQL.Enabled {
		repo, err := repository.NewPostgresRepository(
			cfg.GetPostgreSQLDSN(),
			cfg.PostgreSQL.MaxConnections,
			cfg.PostgreSQL.MaxIdleConnections,
		)
		if err != nil {
			return err
		}
		defer repo.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = repo.EnsureSchema(ctx)
		cancel()
		if err != nil {
			return err
		}

		opts = append(opts, service.WithQueryLog(repo))
		logger.Info().Msg("query log enabled (PostgreSQL)")
	} else {
		logger.Info().Msg("query log disabled, set DATABASE_URL or PG_HOST to enable it")
	}

	svc, rs, err := newQueryService(cfg, opts...)
	if err != nil {
		return err
	}
	logger.Info().
		Int("conditions", len(rs.Conditions)).
		Int("resources", len(rs.Resources)).
		Str("rules_file", cfg.Rules.File).
		Msg("rule set loaded")

	queryHandler := handler.NewQueryHandler(svc, rs.Examples, cfg.Query.MaxLength)
	historyHandler := handler.NewHistoryHandler(svc, cfg.Query.HistoryLimit)
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.Query.RateLimitRPS,
		BurstSize:         cfg.Query.RateLimitBurst,
	})

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = config.SplitList(cfg.Server.AllowedOrigins)
	corsConfig.AllowMethods = config.SplitList(cfg.Server.AllowedMethods)
	corsConfig.AllowHeaders = config.SplitList(cfg.Server.AllowedHeaders)
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "healthy",
			"service":    "fhir-nlp",
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
			"query_log":  svc.QueryLogEnabled(),
		})
	})

	// Version endpoint
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})

	// API routes
	api := router.Group("/", middleware.BodyLimit(cfg.Query.MaxBodyBytes), limiter.Middleware())
	handler.RegisterRoutes(api, queryHandler, historyHandler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutting down server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info().Msg("server stopped")
	return nil
}

// newQueryService loads the rule set and wires the pipeline
func newQueryService(cfg *config.Config, opts ...service.Option) (*service.QueryService, *rules.RuleSet, error) {
	rs, err := rules.Load(cfg.Rules.File)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load rules: %w", err)
	}

	svc := service.NewQueryService(
		service.NewIntentExtractor(rs),
		service.NewQueryCompiler(rs),
		cfg.Mock,
		opts...,
	)
	return svc, rs, nil
}

// newLogger builds the process logger from LOG_LEVEL and LOG_FORMAT
func newLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
