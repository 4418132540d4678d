// Package config reads the process environment into an immutable snapshot at
// startup. Nothing here is re-read at runtime.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sangshuduo/yt-downloader-wasm/internal/resolver"
)

const (
	defaultInvidiousURL = "https://invidious.fdn.fr"
	defaultS3Region     = "us-east-1"
)

type Config struct {
	DefaultBackend   resolver.Backend
	InvidiousURL     string
	PipedAPIURL      string
	PipedInstances   []string
	PipedMaxAttempts int
	S3Bucket         string
	S3Region         string
}

// Load resolves the configuration surface:
//
//	DEFAULT_BACKEND    native | invidious | piped (default native)
//	INVIDIOUS_URL      Invidious instance base URL
//	PIPED_API_URL      self-hosted Piped override (replaces the pool)
//	PIPED_INSTANCES    comma-separated pool override
//	PIPED_MAX_ATTEMPTS pool attempt cap (default 8)
//	S3_BUCKET          upload bucket; empty disables uploads
//	AWS_REGION         bucket region (default us-east-1)
func Load() (Config, error) {
	cfg := Config{
		DefaultBackend:   resolver.BackendNative,
		InvidiousURL:     getenv("INVIDIOUS_URL", defaultInvidiousURL),
		PipedAPIURL:      os.Getenv("PIPED_API_URL"),
		PipedInstances:   resolver.DefaultPipedInstances,
		PipedMaxAttempts: resolver.DefaultPipedMaxAttempts,
		S3Bucket:         os.Getenv("S3_BUCKET"),
		S3Region:         getenv("AWS_REGION", defaultS3Region),
	}

	if raw := os.Getenv("DEFAULT_BACKEND"); raw != "" {
		backend, err := resolver.ParseBackend(raw)
		if err != nil {
			return Config{}, fmt.Errorf("DEFAULT_BACKEND: %w", err)
		}
		cfg.DefaultBackend = backend
	}
	if raw := os.Getenv("PIPED_INSTANCES"); raw != "" {
		instances := splitInstances(raw)
		if len(instances) == 0 {
			return Config{}, fmt.Errorf("PIPED_INSTANCES: no usable entries in %q", raw)
		}
		cfg.PipedInstances = instances
	}
	if raw := os.Getenv("PIPED_MAX_ATTEMPTS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("PIPED_MAX_ATTEMPTS: expected a positive integer, got %q", raw)
		}
		cfg.PipedMaxAttempts = n
	}

	return cfg, nil
}

// Registry converts the snapshot into the resolver's backend registry.
func (c Config) Registry() resolver.Registry {
	return resolver.Registry{
		DefaultBackend:   c.DefaultBackend,
		InvidiousURL:     c.InvidiousURL,
		PipedAPIURL:      c.PipedAPIURL,
		PipedInstances:   c.PipedInstances,
		PipedMaxAttempts: c.PipedMaxAttempts,
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitInstances(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimRight(strings.TrimSpace(p), "/")
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
