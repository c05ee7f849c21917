package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/palettehq/palette/catalog"
	"github.com/palettehq/palette/docstore"
	"github.com/palettehq/palette/internal/config"
	"github.com/palettehq/palette/internal/httpapi"
	"github.com/palettehq/palette/relstore"
	"github.com/palettehq/palette/searchmirror"
)

func main() {
	root := &cli.Command{
		Name:  "palette",
		Usage: "Art and artizen coordination service",
		Commands: []*cli.Command{
			serverCommand(),
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func serverCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Run the HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "palette.yml", Usage: "configuration file path"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runServer(ctx, c.String("config"))
		},
	}
}

func runServer(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()
	sugar := logger.Sugar()

	db, err := relstore.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := relstore.RunMigrations(ctx, db, cfg.Database.Driver); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	rel := relstore.NewRepository(db)

	docs, err := newDocumentStore(ctx, cfg)
	if err != nil {
		return err
	}

	mirror, err := searchmirror.NewClient(&redis.Options{
		Addr:     cfg.Search.Addr,
		Password: cfg.Search.Password,
		DB:       cfg.Search.DB,
	}, cfg.Search.Namespace)
	if err != nil {
		return fmt.Errorf("search mirror: %w", err)
	}
	defer func() {
		_ = mirror.Close()
	}()

	co := catalog.New(docs, rel, mirror, sugar)
	router := httpapi.NewRouter(co, mirror, sugar)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		sugar.Infow("server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		sugar.Infow("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newDocumentStore(ctx context.Context, cfg *config.Config) (*docstore.Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Documents.Region),
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Documents.Endpoint != "" {
			o.BaseEndpoint = &cfg.Documents.Endpoint
		}
	})

	storeCfg := docstore.DefaultConfig()
	storeCfg.TablePrefix = cfg.Documents.TablePrefix
	return docstore.New(client, storeCfg), nil
}

func newLogger(level string) (*zap.Logger, error) {
	var parsed zapcore.Level
	if err := parsed.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	if parsed == zapcore.DebugLevel {
		z := zap.NewDevelopmentConfig()
		z.Level = zap.NewAtomicLevelAt(parsed)
		return z.Build()
	}

	z := zap.NewProductionConfig()
	z.Level = zap.NewAtomicLevelAt(parsed)
	return z.Build()
}
