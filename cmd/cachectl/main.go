package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"comparoo/internal/adapters/config"
	"comparoo/internal/adapters/redis"
	"comparoo/internal/services/comparison"
	"comparoo/pkg/errors"
	"comparoo/pkg/logger"
)

const usage = `usage: cachectl <command> [flags]

commands:
  stats                                        count cached comparisons, products and metrics
  invalidate-product -id ID -name NAME         drop every cached research day of a product
  invalidate-query -category C [-constraints X] drop one cached comparison
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	if !strings.EqualFold(cfg.Cache.Backend, "redis") {
		log.Fatalf("cachectl needs the redis cache backend, got %q", cfg.Cache.Backend)
	}

	client, err := redis.NewClient(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, os.Args[1:], comparison.NewCacheAdmin(client), os.Stdout); err != nil {
		log.Errorw("cachectl_failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

// run executes one admin command and writes its JSON report to out
func run(ctx context.Context, args []string, admin *comparison.CacheAdmin, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("command is required")
	}

	var report interface{}
	switch args[0] {
	case "stats":
		stats, err := admin.Stats(ctx)
		if err != nil {
			return err
		}
		report = stats

	case "invalidate-product":
		fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		id := fs.String("id", "", "product id")
		name := fs.String("name", "", "product name")
		if err := fs.Parse(args[1:]); err != nil {
			return errors.Wrap(err, "parse flags")
		}
		deleted, err := admin.InvalidateProduct(ctx, *id, *name)
		if err != nil {
			return err
		}
		report = map[string]interface{}{"product_id": *id, "product_name": *name, "deleted": deleted}

	case "invalidate-query":
		fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		category := fs.String("category", "", "comparison category")
		constraints := fs.String("constraints", "", "comparison constraints")
		if err := fs.Parse(args[1:]); err != nil {
			return errors.Wrap(err, "parse flags")
		}
		found, err := admin.InvalidateQuery(ctx, *category, *constraints)
		if err != nil {
			return err
		}
		report = map[string]interface{}{"category": *category, "constraints": *constraints, "deleted": found}

	default:
		return errors.Newf("unknown command %q", args[0])
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
