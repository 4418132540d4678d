package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/sangshuduo/yt-downloader-wasm/internal/config"
	"github.com/sangshuduo/yt-downloader-wasm/internal/resolver"
	"github.com/sangshuduo/yt-downloader-wasm/internal/storage"
	"github.com/sangshuduo/yt-downloader-wasm/internal/web"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	timeout := flag.Duration("timeout", 2*time.Minute, "per-request resolution timeout (0 disables)")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.Warnf("unknown log level %q, using info", *logLevel)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	res := resolver.New(cfg.Registry())
	defer resolver.CloseIdleConnections()

	var store web.StreamStore
	if cfg.S3Bucket != "" {
		sess, err := session.NewSession(aws.NewConfig().WithRegion(cfg.S3Region))
		if err != nil {
			log.Fatalf("initializing aws session: %v", err)
		}
		store = storage.NewUploader(s3.New(sess), cfg.S3Bucket, cfg.S3Region, log)
		log.WithFields(logrus.Fields{"bucket": cfg.S3Bucket, "region": cfg.S3Region}).Info("s3 uploads enabled")
	} else {
		log.Warn("S3_BUCKET not set; /api/upload-s3 disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := web.NewServer(res, store, *timeout, log)
	log.WithFields(logrus.Fields{
		"addr":    *addr,
		"backend": cfg.DefaultBackend,
	}).Info("starting server")

	if err := srv.ListenAndServe(ctx, *addr); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("server: %v", err)
	}
}
