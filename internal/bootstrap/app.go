package bootstrap

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"droplink-backend/internal/links"
	"droplink-backend/internal/shared/config"
	"droplink-backend/internal/shared/password"
	"droplink-backend/internal/shared/server"
	"droplink-backend/internal/shared/server/middleware"
	"droplink-backend/internal/shared/storage/db"
	"droplink-backend/internal/shared/storage/object"
	localstore "droplink-backend/internal/shared/storage/object/local"
	s3store "droplink-backend/internal/shared/storage/object/s3"
	"droplink-backend/internal/shares"
)

// App holds explicitly constructed dependencies. Nothing here is a process
// global; every component receives its collaborators at build time.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.BlobStore

	SharesRepo    shares.Repo
	SharesService *shares.Service
	SharesHandler *shares.Handler
	LinkIssuer    links.Issuer
	LinkHandler   *links.Handler
}

// Build prepares all dependencies and the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, DB: sqlDB}

	if err := buildStore(ctx, cfg, app); err != nil {
		return nil, err
	}
	if err := buildServices(cfg, app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:       cfg,
		ShareHandler: app.SharesHandler,
		LinkHandler:  app.LinkHandler,
		Limiter:      middleware.NewRateLimiter(nil),
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory share registry")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory share registry: %v", err)
			return nil, nil
		}
		return nil, err
	}

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return sqlDB, nil
}

// buildStore selects the blob store and the matching link issuer: S3 gets
// presigned GET URLs, everything else gets HMAC-signed retrieve tokens
// redeemed against this service.
func buildStore(ctx context.Context, cfg config.Config, app *App) error {
	switch cfg.ObjectStoreType {
	case "s3":
		store, err := s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
		if err != nil {
			return err
		}
		issuer, err := links.NewPresignIssuer(store, nil)
		if err != nil {
			return err
		}
		app.Store = store
		app.LinkIssuer = issuer
		return nil
	default:
		store := localstore.New(cfg.LocalStoreDir)
		secret := cfg.LinkSecret
		if secret == "" {
			if !isDevLike(cfg.Env) {
				return fmt.Errorf("LINK_SECRET is required")
			}
			secret = randomSecret()
			log.Printf("bootstrap: LINK_SECRET empty; using ephemeral dev secret")
		}
		issuer, err := links.NewTokenIssuer(secret, cfg.PublicBaseURL, nil)
		if err != nil {
			return err
		}
		app.Store = store
		app.LinkIssuer = issuer
		app.LinkHandler = links.NewHandler(issuer, store, shares.BlobKeyFor)
		return nil
	}
}

func buildServices(cfg config.Config, app *App) error {
	if app.DB != nil {
		app.SharesRepo = &shares.PGRepo{DB: app.DB}
	} else {
		app.SharesRepo = shares.NewMemoryRepo()
	}

	app.SharesService = &shares.Service{
		Store:     app.Store,
		Repo:      app.SharesRepo,
		Guard:     password.NewGuard(),
		Issuer:    app.LinkIssuer,
		LinkTTL:   cfg.LinkTTL,
		OpTimeout: cfg.OpTimeout,
	}
	app.SharesHandler = shares.NewHandler(app.SharesService, cfg.PublicBaseURL, cfg.MaxUploadBytes)
	return nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func randomSecret() string {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return hex.EncodeToString(b[:])
}
