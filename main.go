package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asaidimu/go-repodb/config"
	"github.com/asaidimu/go-repodb/core/persistence"
	"github.com/asaidimu/go-repodb/core/query"
	"github.com/asaidimu/go-repodb/core/remote"
	"github.com/asaidimu/go-repodb/core/schema"
	"github.com/asaidimu/go-repodb/github"
	"github.com/asaidimu/go-repodb/sqlite"
	"github.com/asaidimu/go-repodb/utils"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// BlogPost is the typed form of a blog_posts record.
type BlogPost struct {
	ID       string   `json:"id,omitempty"`
	UID      string   `json:"uid,omitempty"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Platform string   `json:"platform"`
	Status   string   `json:"status,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

func main() {
	var (
		envFile  string
		tenantID string
		watch    bool
	)
	flag.StringVar(&envFile, "env", "", "path to a .env file (defaults to ./.env when present)")
	flag.StringVar(&tenantID, "tenant", string(persistence.TenantSchool), "tenant to run the demo against")
	flag.BoolVar(&watch, "watch", false, "keep running and print blog post changes until interrupted")
	flag.Parse()

	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	tenant, err := persistence.ParseTenant(tenantID)
	if err != nil {
		logger.Fatal("Invalid tenant", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rs, closeRemote, err := openRemote(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open remote store", zap.Error(err))
	}
	defer closeRemote()

	store, err := persistence.NewStore(rs, persistence.Options{
		BasePath:       cfg.BasePath,
		PollInterval:   cfg.PollInterval,
		RequestTimeout: cfg.RequestTimeout,
		MaxRetries:     cfg.MaxRetries,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal("Failed to create store", zap.Error(err))
	}
	defer store.Close()

	store.RegisterSubscription(persistence.RegisterSubscriptionOptions{
		Event: persistence.WriteConflict,
		Callback: func(ctx context.Context, event persistence.PersistenceEvent) error {
			logger.Info("Conflict event", zap.Stringp("collection", event.Collection))
			return nil
		},
	})

	if err := runDemo(ctx, store.Tenant(tenant), logger, watch); err != nil {
		logger.Fatal("Demo failed", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func openRemote(ctx context.Context, cfg config.Config, logger *zap.Logger) (remote.Store, func(), error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath, logger, &sqlite.Options{
			TableName:   "repodb_files",
			IfNotExists: true,
			Timeout:     cfg.RequestTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using sqlite backend", zap.String("path", cfg.SQLitePath))
		return store, func() { _ = store.Close() }, nil
	default:
		client, err := github.NewClient(github.Options{
			BaseURL: cfg.APIURL,
			Owner:   cfg.Owner,
			Repo:    cfg.Repo,
			Branch:  cfg.Branch,
			Token:   cfg.Token,
			Timeout: cfg.RequestTimeout,
			Logger:  logger,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using contents API backend",
			zap.String("repository", cfg.Owner+"/"+cfg.Repo),
			zap.String("branch", cfg.Branch),
		)
		return client, func() {}, nil
	}
}

func runDemo(ctx context.Context, site *persistence.TenantStore, logger *zap.Logger, watch bool) error {
	const collection = "blog_posts"

	unsubscribe := site.Subscribe(collection, func(records []schema.Document) {
		posts, err := utils.DocumentsToStructs[BlogPost](records)
		if err != nil {
			logger.Warn("Unreadable blog posts", zap.Error(err))
			return
		}
		fmt.Printf("[%s] %d blog post(s)\n", site.Name(collection), len(posts))
	})
	defer unsubscribe()

	doc, err := utils.StructToDocument(BlogPost{
		Title:    "Welcome",
		Content:  "Term starts on Monday.",
		Platform: string(site.Tenant()),
		Tags:     []string{"news"},
	})
	if err != nil {
		return err
	}
	created, err := site.Insert(ctx, collection, doc)
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	post, err := utils.DocumentToStruct[BlogPost](created)
	if err != nil {
		return err
	}
	fmt.Printf("Created post id=%s uid=%s status=%s\n", post.ID, post.UID, post.Status)

	if _, err := site.Update(ctx, collection, post.UID, schema.Document{"status": "published"}); err != nil {
		return fmt.Errorf("update: %w", err)
	}

	published, err := site.Query(collection).
		WhereField("status").Eq("published").
		WhereField("tags").Contains("news").
		Sort("title", query.SortDirectionAsc).
		Project("id", "title").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	fmt.Printf("Published news posts: %v\n", published)

	for _, entry := range site.Audit(collection) {
		fmt.Printf("audit %s %s at %s\n", entry.Action, entry.Key, entry.Timestamp.Format(time.RFC3339))
	}

	if watch {
		fmt.Println("Watching for changes, press Ctrl+C to exit")
		<-ctx.Done()
		return nil
	}

	if err := site.Delete(ctx, collection, post.ID); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	fmt.Println("Removed demo post")
	return nil
}
