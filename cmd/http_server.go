package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paperforge/paperforge/internal"
	"github.com/paperforge/paperforge/internal/archive"
	"github.com/paperforge/paperforge/internal/auth"
	authPostgres "github.com/paperforge/paperforge/internal/auth/postgres"
	"github.com/paperforge/paperforge/internal/file"
	filePostgres "github.com/paperforge/paperforge/internal/file/postgres"
	"github.com/paperforge/paperforge/internal/pipeline"
	"github.com/paperforge/paperforge/internal/project"
	projectPostgres "github.com/paperforge/paperforge/internal/project/postgres"
	"github.com/paperforge/paperforge/internal/storage"
	"github.com/paperforge/paperforge/internal/transport/rest"
	"github.com/paperforge/paperforge/internal/user"
	userPostgres "github.com/paperforge/paperforge/internal/user/postgres"
	"github.com/paperforge/paperforge/pkg/logger"
	"github.com/paperforge/paperforge/pkg/mailer"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	GormDB *gorm.DB
	Logger *slog.Logger

	UserService     *user.Service
	ProjectService  *project.Service
	FileService     *file.Service
	PipelineService *pipeline.Service
	ArchiveService  *archive.Service

	Handlers rest.Handlers
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, deps.DB.DB, deps.Handlers, deps.Logger)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			slog.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)
	lg := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// GORM shares the pgx connection pool opened above.
	gormDB, err := gorm.Open(gormPostgres.New(gormPostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	ws := storage.NewWorkspace(config.Storage.UploadRoot)
	mail := mailer.NewLogMailer(lg)

	userRepo := userPostgres.NewUserRepository(gormDB)
	userService := user.NewService(userRepo, mail, config.Security.AccessTokenSecret, config.Security.BCryptCost, lg)

	tokenGen := auth.NewJWTTokenGenerator(
		config.Security.AccessTokenSecret,
		config.Security.RefreshTokenSecret,
		config.Security.AccessTokenDuration,
		config.Security.RefreshTokenDuration,
	)
	authService := auth.NewService(authPostgres.NewRepository(gormDB), tokenGen)

	projectRepo := projectPostgres.NewProjectRepository(gormDB)
	projectService := project.NewService(projectRepo, ws, userService, mail, lg)

	fileRepo := filePostgres.NewFileRepository(gormDB)
	fileService := file.NewService(fileRepo, projectService, ws, lg)

	runner := pipeline.NewDockerRunner(config.Pipelines.DockerBinary, config.Pipelines.InvocationTimeout, lg)
	pipelineService := pipeline.NewService(runner, fileService, projectService, ws, &config.Pipelines, &config.Storage, lg)

	archiveService := archive.NewService(fileRepo, projectService, ws, lg)

	return &Dependencies{
		Config: config,
		DB:     db,
		GormDB: gormDB,
		Logger: lg,

		UserService:     userService,
		ProjectService:  projectService,
		FileService:     fileService,
		PipelineService: pipelineService,
		ArchiveService:  archiveService,

		Handlers: rest.Handlers{
			Auth:     auth.NewHandler(authService),
			User:     user.NewHandler(userService),
			Project:  project.NewHandler(projectService),
			File:     file.NewHandler(fileService),
			Pipeline: pipeline.NewHandler(pipelineService),
			Archive:  archive.NewHandler(archiveService),
		},
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
