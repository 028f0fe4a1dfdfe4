package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/synthrec/synthrec/internal/config"
	"github.com/synthrec/synthrec/internal/domain/document"
	"github.com/synthrec/synthrec/internal/domain/generation"
	"github.com/synthrec/synthrec/internal/domain/template"
	"github.com/synthrec/synthrec/internal/domain/validation"
	"github.com/synthrec/synthrec/internal/platform/auth"
	"github.com/synthrec/synthrec/internal/platform/db"
	"github.com/synthrec/synthrec/internal/platform/middleware"
	"github.com/synthrec/synthrec/internal/platform/telemetry"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "synthrec",
		Short: "Synthetic clinical records generator",
	}

	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(templatesCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLvl); err == nil && lvl != zerolog.NoLevel {
		logger = logger.Level(lvl)
	}
	return logger
}

// loadRegistry loads the template tree and wires the built-in placeholder
// names into load-time reference checking.
func loadRegistry(cfg *config.Config, logger zerolog.Logger) (*template.Registry, error) {
	reg := template.NewRegistry(logger, document.BuiltinFieldNames())
	if err := reg.Load(cfg.TemplateDir); err != nil {
		return nil, err
	}
	return reg, nil
}

func generateCmd() *cobra.Command {
	var (
		diseases   []string
		patients   int
		minDocs    int
		maxDocs    int
		startDate  string
		endDate    string
		templates  []string
		docTypes   []string
		level      string
		strictness string
		noValidate bool
		cohort     bool
		seed       int64
		output     string
		outFile    string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate synthetic clinical records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			reg, err := loadRegistry(cfg, logger)
			if err != nil {
				return err
			}

			svc := generation.NewService(reg, validation.NewEngine(logger), logger)
			svc.SetWorkers(cfg.GenerateWorkers)
			svc.SetMaxPatients(cfg.GenerateMaxPatients)

			req := &generation.Request{
				Diseases:   diseases,
				Patients:   patients,
				MinDocs:    minDocs,
				MaxDocs:    maxDocs,
				StartDate:  startDate,
				EndDate:    endDate,
				Templates:  templates,
				DocTypes:   docTypes,
				Level:      level,
				Strictness: strictness,
				Cohort:     cohort,
			}
			if noValidate {
				f := false
				req.Validate = &f
			}
			if cmd.Flags().Changed("seed") {
				req.Seed = &seed
			}

			res, err := svc.Run(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outFile != "" {
				f, err := os.Create(outFile)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}

			switch output {
			case "json":
				return generation.WriteJSON(out, res)
			case "ndjson":
				return generation.WriteNDJSON(out, res)
			case "csv":
				return generation.WriteCSV(out, res)
			default:
				return fmt.Errorf("unknown output format %q (want json, ndjson, or csv)", output)
			}
		},
	}

	now := time.Now()
	cmd.Flags().StringSliceVar(&diseases, "diseases", nil, "Target conditions (e.g. diabetes,hypertension)")
	cmd.Flags().IntVar(&patients, "patients", 1, "Number of patients (per disease in cohort mode)")
	cmd.Flags().IntVar(&minDocs, "min-docs", 1, "Minimum documents per patient")
	cmd.Flags().IntVar(&maxDocs, "max-docs", 3, "Maximum documents per patient")
	cmd.Flags().StringVar(&startDate, "start-date", now.AddDate(-1, 0, 0).Format("2006-01-02"), "Document date range start")
	cmd.Flags().StringVar(&endDate, "end-date", now.Format("2006-01-02"), "Document date range end")
	cmd.Flags().StringSliceVar(&templates, "templates", nil, "Template paths (specialty/doctype/name)")
	cmd.Flags().StringSliceVar(&docTypes, "doc-types", nil, "Legacy document types mapped through registry search")
	cmd.Flags().StringVar(&level, "level", "moderate", "Randomization level: conservative, moderate, or high")
	cmd.Flags().StringVar(&strictness, "strictness", "standard", "Validation strictness: basic, standard, or strict")
	cmd.Flags().BoolVar(&noValidate, "no-validate", false, "Skip validation")
	cmd.Flags().BoolVar(&cohort, "cohort", false, "Prevalence-weighted cohort mode")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Run seed (omit for a self-assigned seed)")
	cmd.Flags().StringVar(&output, "output", "json", "Output format: json, ndjson, or csv")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "Output file (default stdout)")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the generation API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	reg, err := loadRegistry(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load templates")
	}
	logger.Info().Int("templates", len(reg.List())).Str("dir", cfg.TemplateDir).Msg("templates loaded")

	metrics := telemetry.NewProvider("synthrec")

	svc := generation.NewService(reg, validation.NewEngine(logger), logger)
	svc.SetWorkers(cfg.GenerateWorkers)
	svc.SetMaxPatients(cfg.GenerateMaxPatients)
	svc.SetMetrics(metrics)

	// Run history: Postgres when configured, in-memory otherwise.
	ctx := context.Background()
	var repo generation.Repository
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		var err error
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")
		repo = generation.NewRepo(pool)
	} else {
		logger.Info().Msg("no DATABASE_URL, keeping run history in memory")
		repo = generation.NewMemoryRepo()
	}
	svc.SetRepository(repo)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.SanitizeWithLogger(logger))
	e.Use(metrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/metrics", metrics.Handler())
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}

	apiV1 := e.Group("/api/v1")

	if cfg.ResolvedAuthMode() == "development" {
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}))
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.Audit(logger))
	apiV1.Use(middleware.BodyLimit("10M"))
	apiV1.Use(middleware.RequestTimeout(2 * time.Minute))

	// Template catalog responses only change on registry reload, so GET
	// routes carry ETag/304 handling. Run history is excluded because new
	// runs arrive between requests.
	cacheCfg := middleware.DefaultCacheConfig()
	cacheCfg.ExcludePaths = []string{"/api/v1/runs"}
	apiV1.Use(middleware.ETagMiddleware(cacheCfg))

	template.NewHandler(reg).RegisterRoutes(apiV1)
	generation.NewHandler(svc, repo).RegisterRoutes(apiV1)

	// Start and wait for shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()
	logger.Info().Str("port", cfg.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func templatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Inspect the template set",
	}

	load := func() (*template.Registry, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		return loadRegistry(cfg, newLogger(cfg))
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List loaded templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := load()
			if err != nil {
				return err
			}
			for _, t := range reg.List() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-50s fields=%d rules=%d\n", t.Path(), len(t.Fields), len(t.Rules))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <specialty/doctype/name>",
		Short: "Show one template's fields and rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := load()
			if err != nil {
				return err
			}
			t, err := reg.Resolve(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", t.Path(), t.File)
			for i := range t.Fields {
				f := &t.Fields[i]
				fmt.Fprintf(out, "  field %-30s %s\n", f.Path, f.Kind)
			}
			for i := range t.Rules {
				r := &t.Rules[i]
				fmt.Fprintf(out, "  rule  %-30s %s/%s/%s\n", r.Name, r.Severity, r.Tier, r.Kind)
			}
			for _, s := range t.SkippedRules {
				fmt.Fprintf(out, "  skip  %-30s %s\n", s.Rule, s.Reason)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the whole template directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := load()
			if err != nil {
				return err
			}
			skipped := 0
			for _, t := range reg.List() {
				skipped += len(t.SkippedRules)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: %d template(s), %d skipped rule(s)\n", len(reg.List()), skipped)
			return nil
		},
	})
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	openPool := func(ctx context.Context) (*config.Config, func(), *db.Migrator, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, nil, err
		}
		if cfg.DatabaseURL == "" {
			return nil, nil, nil, fmt.Errorf("DATABASE_URL is required for migrations")
		}
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, nil, err
		}
		dir, _ := cmd.PersistentFlags().GetString("dir")
		return cfg, pool.Close, db.NewMigrator(pool, dir), nil
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, closePool, migrator, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer closePool()

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, closePool, migrator, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer closePool()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return err
			}
			for _, s := range statuses {
				state := "pending"
				if s.Applied {
					state = "applied " + s.AppliedAt.Format(time.RFC3339)
				}
				fmt.Printf("%03d %-40s %s\n", s.Version, s.Name, state)
			}
			return nil
		},
	}
	cmd.AddCommand(statusCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("down migrations are not supported; restore from a backup instead")
		},
	})

	cmd.PersistentFlags().String("dir", "./migrations", "Path to migrations directory")
	return cmd
}
