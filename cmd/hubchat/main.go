// hubchat - terminal client for the knowledge hub chat
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/bdintelligence20/triggr4-hub/internal/catalog"
	"github.com/bdintelligence20/triggr4-hub/internal/chat"
	"github.com/bdintelligence20/triggr4-hub/internal/config"
	"github.com/bdintelligence20/triggr4-hub/internal/domain"
	"github.com/bdintelligence20/triggr4-hub/internal/tokenstore"
)

func main() {
	// The REPL owns stdout; logs go to stderr and stay quiet unless something breaks.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	cfg, err := config.LoadClient()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	categories, tokens, err := openLocalState(cfg)
	if err != nil {
		slog.Error("Failed to open local state", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := tokens.Close(); closeErr != nil {
			slog.Error("Failed to close token store", "error", closeErr)
		}
	}()

	opts := chat.Options{
		API:           chat.NewHTTPClient(cfg.APIURL, tokens, &http.Client{Timeout: cfg.RequestTimeout}),
		Categories:    categories,
		IDs:           chat.NewClockIDs(),
		Logger:        logger,
		HistoryWindow: cfg.HistoryWindow,
		AutosaveDelay: cfg.AutosaveDelay,
		CourtesyDelay: cfg.CourtesyDelay,
	}
	if cfg.LiveUpdates {
		opts.Live = chat.NewWebsocketDialer(cfg.APIURL, tokens, logger)
	}
	manager := chat.NewManager(opts)
	defer manager.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OrganizationID != "" {
		manager.SetOrganization(ctx, domain.Organization{ID: cfg.OrganizationID})
	}
	manager.SelectCategory(catalog.AllItemsID)

	r := newREPL(manager, tokens, categories, color.Output)
	r.banner(cfg.APIURL)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		r.prompt()
		select {
		case <-ctx.Done():
			r.println("")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if r.handle(ctx, line) {
				return
			}
		}
	}
}

// openLocalState loads the catalog before opening the token store, so a bad
// catalog never leaves the bbolt file open.
func openLocalState(cfg *config.ClientConfig) (*catalog.Catalog, *tokenstore.Store, error) {
	categories, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load category catalog: %w", err)
	}
	tokens, err := tokenstore.Open(cfg.TokenDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open token store %s: %w", cfg.TokenDBPath, err)
	}
	return categories, tokens, nil
}
