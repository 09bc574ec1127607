// go2web is a command-line HTTP user agent built on raw sockets: it fetches
// URLs, searches DuckDuckGo, follows redirects, negotiates content types
// and keeps a durable validated response cache.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go2web/go2web/pkg/cache"
	"github.com/go2web/go2web/pkg/htmltext"
	"github.com/go2web/go2web/pkg/results"
	"github.com/go2web/go2web/pkg/search"
	"github.com/go2web/go2web/pkg/webclient"
)

var (
	urlFlag            string
	searchFlag         string
	openFlag           int
	jsonFlag           bool
	rawFlag            bool
	noCacheFlag        bool
	clearCacheFlag     bool
	dbFilenameFlag     string
	configFilenameFlag string
	verbosityTraceFlag bool
)

func init() {
	flag.StringVar(&urlFlag, "u", "", "Make an HTTP request to the specified URL")
	flag.StringVar(&searchFlag, "s", "", "Search the term using DuckDuckGo and print top results")
	flag.IntVar(&openFlag, "o", 0, "Open result number N from the last search")
	flag.BoolVar(&jsonFlag, "json", false, "Negotiate a JSON response")
	flag.BoolVar(&rawFlag, "raw", false, "Print the body as-is, without HTML text extraction")
	flag.BoolVar(&noCacheFlag, "no-cache", false, "Bypass the response cache for this request")
	flag.BoolVar(&clearCacheFlag, "clear-cache", false, "Remove all cached responses and exit")
	flag.StringVar(&dbFilenameFlag, "db", "", "Database file name (use 'memory' for no persistence; -o needs the file-backed default)")
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
}

func main() {
	flag.Parse()

	logLevel := zerolog.InfoLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}
	log.Logger = log.Level(logLevel).Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config := defaultConfig()
	if configFilenameFlag != "" {
		var err error
		config, err = getConfig(configFilenameFlag)
		if err != nil {
			log.Fatal().Err(err).Str("config", configFilenameFlag).Msg("Could not read config")
		}
	}
	if dbFilenameFlag != "" {
		config.DBFile = dbFilenameFlag
	}

	if err := run(config); err != nil {
		log.Error().Err(err).Msg("Request failed")
		os.Exit(1)
	}
}

func run(config Config) error {
	provider, dbPath, err := openCache(config)
	if err != nil {
		return err
	}
	defer provider.Close()

	if clearCacheFlag {
		// always succeeds, even on an empty or unreadable cache
		if err := provider.Clear(); err != nil {
			log.Warn().Err(err).Msg("Could not clear cache")
		} else {
			log.Info().Msg("Cache cleared")
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := webclient.New(provider)
	client.ConnectTimeout = config.connectTimeout()
	client.ReadTimeout = config.readTimeout()
	client.MaxHops = config.MaxHops
	client.UserAgent = config.UserAgent
	client.HeuristicTTL = config.heuristicTTL()

	switch {
	case urlFlag != "":
		return fetchAndPrint(ctx, client, urlFlag)
	case searchFlag != "":
		return runSearch(ctx, client, dbPath, config.SearchResults, searchFlag)
	case openFlag > 0:
		store, err := results.Open(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		result, err := store.Get(openFlag)
		if err != nil {
			return err
		}
		log.Info().Int("result", openFlag).Str("url", result.URL).Msg("Opening stored result")
		return fetchAndPrint(ctx, client, result.URL)
	default:
		flag.Usage()
		return nil
	}
}

// openCache returns the cache provider plus the database path shared with
// the result list store.
func openCache(config Config) (cache.Provider, string, error) {
	if config.DBFile == "memory" {
		provider := cache.NewMemCache()
		provider.HeuristicTTL = config.heuristicTTL()
		return provider, ":memory:", nil
	}
	provider, err := cache.NewSQLiteCache(config.DBFile)
	if err != nil {
		return nil, "", err
	}
	provider.HeuristicTTL = config.heuristicTTL()
	return provider, config.DBFile, nil
}

func fetchAndPrint(ctx context.Context, client *webclient.Client, target string) error {
	res, err := client.Fetch(ctx, target, fetchOptions())
	if err != nil {
		return err
	}
	log.Debug().
		Int("status", res.StatusCode).
		Str("url", res.EffectiveURL.String()).
		Msg("Fetched")

	if !rawFlag && webclient.SelectRepresentation(res) == webclient.HTML {
		fmt.Println(htmltext.Extract(res.Body))
		return nil
	}
	os.Stdout.Write(res.Body)
	fmt.Println()
	return nil
}

func runSearch(ctx context.Context, client *webclient.Client, dbPath string, limit int, term string) error {
	queryURL := search.QueryURL(term)
	res, err := client.Fetch(ctx, queryURL, fetchOptions())
	if err != nil {
		return err
	}
	base := res.EffectiveURL
	if base == nil {
		base, _ = url.Parse(queryURL)
	}
	found, err := search.ParseResults(res.Body, base)
	if err != nil {
		return err
	}
	if len(found) > limit {
		found = found[:limit]
	}
	if len(found) == 0 {
		fmt.Println("No results.")
		return nil
	}

	store, err := results.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Save(found); err != nil {
		return err
	}

	for i, result := range found {
		fmt.Printf("%2d. %s\n    %s\n", i+1, result.Title, result.URL)
	}
	fmt.Println("\nUse -o N to open a result.")
	return nil
}

func fetchOptions() webclient.Options {
	opts := webclient.Options{UseCache: !noCacheFlag}
	if jsonFlag {
		opts.ContentType = webclient.ContentTypeJSON
	}
	return opts
}
