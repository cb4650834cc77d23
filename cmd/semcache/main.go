// Package main provides the semcache CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/strata-ai/semcache/pkg/cache"
	"github.com/strata-ai/semcache/pkg/config"
	"github.com/strata-ai/semcache/pkg/embed"
	"github.com/strata-ai/semcache/pkg/index"
	"github.com/strata-ai/semcache/pkg/llm"
	"github.com/strata-ai/semcache/pkg/orchestrator"
	"github.com/strata-ai/semcache/pkg/policy"
	"github.com/strata-ai/semcache/pkg/store"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "semcache",
		Short: "semcache - semantic response cache for LLM queries",
		Long: `semcache sits in front of a language model and answers prompts
from a cache of prior (prompt, response) pairs whenever a new prompt is
close enough, under an embedding similarity metric, to one already seen.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("semcache v%s\n", version)
		},
	})

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Ask three related prompts and show which ones hit the cache",
		RunE:  runDemo,
	}
	demoCmd.Flags().String("config", "", "path to a YAML config file (optional)")
	rootCmd.AddCommand(demoCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runDemo(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg := config.LoadFromEnv()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath, cfg)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx := context.Background()

	embedder := embed.NewCachedEmbedder(
		embed.NewHTTPEmbedder(&embed.Config{
			BaseURL:    cfg.Embed.BaseURL,
			Model:      cfg.Embed.Model,
			Dimensions: cfg.Embed.Dimensions,
			Timeout:    cfg.Embed.Timeout,
		}),
		cfg.Embed.CacheSize,
	)

	model := llm.NewOllamaClient(&llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	})

	dbMetric, err := index.ParseMetric(cfg.Cache.DBDistanceMethod)
	if err != nil {
		return err
	}
	rankingMetric, err := cache.ParseRankingMetric(cfg.Cache.RankingDistanceMethod)
	if err != nil {
		return err
	}

	idx, err := newIndex(cfg, dbMetric)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}

	responseStore, err := store.Open(storagePathOrMemory(cfg.Storage.ResponseDBPath))
	if err != nil {
		return fmt.Errorf("opening response store: %w", err)
	}
	defer responseStore.Close()

	pol := newPolicy(cfg)

	similarityCache, err := cache.New(idx, responseStore, pol, embedder,
		cache.WithCandidatesNumber(cfg.Cache.CandidatesNumber),
		cache.WithHitDistanceThreshold(cfg.Cache.HitDistanceThreshold),
		cache.WithRankingMetric(rankingMetric),
	)
	if err != nil {
		return fmt.Errorf("constructing cache: %w", err)
	}

	orch := orchestrator.New(similarityCache, model)

	prompts := []string{
		"Write me a short script of a calculator in python",
		"Make a simple calculator in python",
		"Hi",
	}

	for i, prompt := range prompts {
		hit, err := similarityCache.IsHit(ctx, prompt)
		if err != nil {
			return fmt.Errorf("ask %d: %w", i+1, err)
		}
		resp, err := orch.Ask(ctx, prompt, false)
		if err != nil {
			return fmt.Errorf("ask %d: %w", i+1, err)
		}
		fmt.Printf("prompt: %s\n", prompt)
		fmt.Printf("cache hit: %v\n", hit)
		fmt.Printf("response: %s\n", resp)
		fmt.Println("-------------")
	}

	return nil
}

func newIndex(cfg *config.Config, metric index.Metric) (*index.RequestIndex, error) {
	if cfg.Storage.IndexDir == "" {
		return index.New(metric), nil
	}
	badgerStore, err := index.OpenBadgerStore(cfg.Storage.IndexDir)
	if err != nil {
		return nil, err
	}
	return index.Open(metric, badgerStore)
}

func storagePathOrMemory(path string) string {
	if path == "" {
		return ":memory:"
	}
	return path
}

func newPolicy(cfg *config.Config) policy.Policy {
	switch cfg.Eviction.Policy {
	case "lfu":
		return policy.NewLFU(cfg.Cache.MaxSize)
	case "adaptive":
		return policy.NewAdaptivePipeline(cfg.Cache.MaxSize, policy.DefaultScorer)
	default:
		return policy.NewLRU(cfg.Cache.MaxSize)
	}
}
