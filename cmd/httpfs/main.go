package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/higlass/httpfs-go/internal/config"
	"github.com/higlass/httpfs-go/internal/engine"
	"github.com/higlass/httpfs-go/internal/fetch"
	"github.com/higlass/httpfs-go/internal/fuse"
	"github.com/higlass/httpfs-go/internal/metrics"
	"github.com/higlass/httpfs-go/internal/store"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to a yaml or json config file")
		schema      = flag.String("schema", "", "Backend protocol: http, https, ftp or s3 (default: inferred from the mountpoint basename)")
		blockSize   = flag.Int64("block-size", 0, "Fetch/cache block size in bytes")
		lruCapacity = flag.Int("lru-capacity", 0, "In-memory cache capacity in blocks")
		cacheDir    = flag.String("cache-dir", "", "Persistent cache directory")
		noCache     = flag.Bool("no-cache", false, "Disable the persistent cache tier")
		allowOther  = flag.Bool("allow-other", false, "Allow access by other users")
		tlsInsecure = flag.Bool("tls-insecure", false, "Skip TLS certificate verification")
		logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <mountpoint>\n\n", os.Args[0])
		fmt.Fprintf(flag.CommandLine.Output(), "Mounts remote http, https, ftp or s3 objects as read-only files.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	mountpoint := flag.Arg(0)

	if *configPath == "" {
		*configPath = os.Getenv("HTTPFS_CONFIG")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("loading configuration")
	}

	// Flags override file and environment configuration.
	if *schema != "" {
		cfg.Schema = *schema
	}
	if *blockSize > 0 {
		cfg.BlockSize = *blockSize
	}
	if *lruCapacity > 0 {
		cfg.LRUCapacity = *lruCapacity
	}
	if *cacheDir != "" {
		cfg.Cache.Dir = *cacheDir
	}
	if *allowOther {
		cfg.Mount.AllowOther = true
	}
	if *tlsInsecure {
		cfg.Fetch.TLSInsecure = true
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Str("level", cfg.LogLevel).Msg("unknown log level")
	}
	logger = logger.Level(level)

	if cfg.Schema == "" {
		cfg.Schema = inferSchema(mountpoint)
		logger.Info().Str("schema", cfg.Schema).Msg("inferred schema from mountpoint")
	}
	switch cfg.Schema {
	case "http", "https", "ftp", "s3":
	default:
		logger.Fatal().Str("schema", cfg.Schema).Msg("unsupported schema; expected http, https, ftp or s3")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher, err := fetch.ForSchema(ctx, cfg.Schema, fetch.Options{
		TLSInsecure: cfg.Fetch.TLSInsecure,
		AWSProfile:  cfg.Fetch.AWSProfile,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("creating fetcher")
	}

	var blockStore store.BlockStore
	if !*noCache {
		dir, err := cfg.CacheDir()
		if err != nil {
			logger.Fatal().Err(err).Msg("resolving cache directory")
		}
		blockStore, err = store.New(store.Config{
			Type:            store.BackendType(cfg.Cache.Backend),
			Dir:             dir,
			MaxBytes:        cfg.Cache.MaxBytes,
			PostgresConnStr: cfg.Cache.PostgresDSN,
			MongoURI:        cfg.Cache.MongoURI,
			MongoDatabase:   cfg.Cache.MongoDatabase,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("opening block store")
		}
		logger.Info().Str("backend", cfg.Cache.Backend).Int64("max_bytes", cfg.Cache.MaxBytes).Msg("persistent cache enabled")
	}

	eng, err := engine.New(engine.Config{
		Schema:      cfg.Schema,
		BlockSize:   cfg.BlockSize,
		LRUCapacity: cfg.LRUCapacity,
		Store:       blockStore,
		Fetcher:     fetcher,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("creating engine")
	}

	if cfg.Metrics.Address != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Address, eng, logger); err != nil {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		logger.Info().Str("signal", sig.String()).Msg("unmounting")
		cancel()
		if err := fuse.Unmount(mountpoint); err != nil {
			logger.Error().Err(err).Msg("unmount failed")
		}
	}()

	if err := fuse.Mount(mountpoint, eng, logger, fuse.MountOptions{AllowOther: cfg.Mount.AllowOther}); err != nil {
		logger.Fatal().Err(err).Msg("mount failed")
	}
}

// inferSchema derives the backend protocol from the mountpoint basename, so
// a mount at /mnt/http serves http URLs and one at /mnt/s3 serves s3 URLs.
func inferSchema(mountpoint string) string {
	base := filepath.Base(filepath.Clean(mountpoint))
	return strings.ToLower(base)
}
