package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"

	"github.com/todmy/fiscal-crossval/internal/api"
	"github.com/todmy/fiscal-crossval/internal/auth"
	"github.com/todmy/fiscal-crossval/internal/config"
	"github.com/todmy/fiscal-crossval/internal/crossval"
	"github.com/todmy/fiscal-crossval/internal/storage"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	var (
		users     auth.UserRepository = auth.NewMemoryRepository()
		runs      storage.RunRepository = storage.NewMemoryRunRepository()
		artifacts storage.ArtifactRepository
	)

	var db *sql.DB
	if cfg.Database.URL != "" {
		db, err = sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := db.Ping(); err != nil {
			log.Fatalf("Failed to ping database: %v", err)
		}
		if err := storage.Migrate(context.Background(), db); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}

		users = auth.NewPostgresRepository(db)
		runs = storage.NewPostgresRunRepository(db)
	} else {
		log.Printf("[WARN] DATABASE_URL not set, users and run history are kept in memory")
	}

	switch cfg.Artifacts.Store {
	case config.StorePostgres:
		artifacts = storage.NewPostgresArtifactRepository(db)
	case config.StoreMemory:
		artifacts = storage.NewMemoryArtifactRepository()
	default:
		artifacts = storage.NewFileArtifactRepository(cfg.Artifacts.Dir)
	}

	engine := crossval.NewEngine(crossval.Config{
		Tolerance: crossval.Tolerance{
			Absolute: cfg.Engine.AbsoluteTolerance,
			Relative: cfg.Engine.RelativeTolerance,
		},
		Workers:              cfg.Engine.Workers,
		SkipSchemaValidation: cfg.Engine.SkipSchemaValidation,
		Logger:               log.Default(),
	}, artifacts)

	authService := auth.NewJWTService(auth.Config{
		SecretKey:     cfg.Auth.JWTSecret,
		TokenDuration: cfg.Auth.TokenDuration,
	}, users)

	server := api.NewServer(api.ServerConfig{
		Engine:         engine,
		Runs:           runs,
		Artifacts:      artifacts,
		Auth:           authService,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         log.Default(),
	})

	fmt.Printf("Starting fiscal-crossval server on port %s (artifact store: %s)\n", cfg.Server.Port, cfg.Artifacts.Store)
	if err := server.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
