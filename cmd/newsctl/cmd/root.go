// Package cmd implements the newsctl command line client.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/NewsDiscover/internal/app"
	"github.com/NewsDiscover/internal/infra/provider"
	"github.com/NewsDiscover/internal/infra/querycache"
	"github.com/NewsDiscover/internal/infra/queue"
	"github.com/NewsDiscover/internal/infra/transformer"
	"github.com/NewsDiscover/pkg/config"
	"github.com/spf13/cobra"
)

type options struct {
	apiURL  string
	apiKey  string
	timeout time.Duration
	asJSON  bool
}

// NewRootCmd builds the command tree. Each call returns fresh flag state.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "newsctl",
		Short:         "Query the news provider through the discovery data layer",
		Long:          "newsctl runs one-shot searches, article lookups and event tails using the same cache, category resolver and search coordinator as the server.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.apiURL, "api-url", "", "provider base URL (default from NEWS_API_URL)")
	root.PersistentFlags().StringVar(&opts.apiKey, "api-key", "", "provider API key (default from NEWS_API_KEY)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall command timeout")
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print raw JSON")

	root.AddCommand(
		newSearchCmd(opts),
		newLatestCmd(opts),
		newArticleCmd(opts),
		newCategoriesCmd(opts),
		newEventsCmd(opts),
	)
	return root
}

func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// runtime is the subset of the server graph a single command needs.
type runtime struct {
	cfg      *config.Config
	cache    *querycache.Cache
	resolver *app.CategoryResolver
	feed     *app.Feed
	sessions *app.SessionManager
}

func newRuntime(opts *options) *runtime {
	cfg := config.Load()
	if opts.apiURL != "" {
		cfg.NewsAPIURL = opts.apiURL
	}
	if opts.apiKey != "" {
		cfg.NewsAPIKey = opts.apiKey
	}

	api := provider.NewEventRegistryClient(provider.Options{
		BaseURL:  cfg.NewsAPIURL,
		APIKey:   cfg.NewsAPIKey,
		Timeout:  cfg.NewsAPITimeout,
		Lang:     cfg.ArticleLang,
		SortBy:   cfg.SortBy,
		PageSize: cfg.PageSize,
	}, transformer.NewEventRegistryTransformer())

	cache := querycache.New(
		querycache.WithMaxRetries(cfg.CacheMaxRetries),
		querycache.WithRetryBackoff(cfg.CacheRetryBackoff),
	)
	resolver := app.NewCategoryResolver(api, cache, cfg.Categories, nil)
	return &runtime{
		cfg:      cfg,
		cache:    cache,
		resolver: resolver,
		feed:     app.NewFeed(api, cache, cfg.PageSize, cfg.MaxPages),
		sessions: app.NewSessionManager(api, cache, resolver, queue.NoopProducer{}, app.SessionConfig{
			PageSize: cfg.PageSize,
			MaxPages: cfg.MaxPages,
			SortBy:   cfg.SortBy,
		}),
	}
}

func (r *runtime) Close() {
	r.sessions.Close()
	r.cache.Close()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
