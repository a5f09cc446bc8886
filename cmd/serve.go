package cmd

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pochenphys/Group-Project/internal/config"
	"github.com/pochenphys/Group-Project/internal/dispatch"
	"github.com/pochenphys/Group-Project/internal/engine"
	"github.com/pochenphys/Group-Project/internal/line"
	"github.com/pochenphys/Group-Project/internal/pantry"
	"github.com/pochenphys/Group-Project/internal/router"
	"github.com/pochenphys/Group-Project/internal/server"
	"github.com/pochenphys/Group-Project/internal/store"
	"github.com/pochenphys/Group-Project/internal/transport"
)

const sweepInterval = 5 * time.Minute

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func runServe() {
	setupLogging()

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var inventory router.Inventory
	var pantryStore *pantry.Store
	if cfg.Database.PostgresDSN != "" {
		pantryStore, err = pantry.Open(ctx, cfg.Database.PostgresDSN)
		if err != nil {
			slog.Error("database connect failed", "error", err)
			os.Exit(1)
		}
		defer pantryStore.Close()
		inventory = pantryStore
	} else {
		slog.Warn("FRIDGELINE_POSTGRES_DSN not set, inventory features disabled")
		inventory = unavailableInventory{}
	}

	lineClient := line.NewClient(cfg.Line.ChannelToken)

	backendHTTP := transport.New(transport.BackendPolicy(), cfg.DispatchTimeout())
	backends := make([]*dispatch.Backend, 0, len(cfg.Backends))
	for _, b := range cfg.Backends {
		backends = append(backends, dispatch.NewBackend(b.Name, b.Role, b.URL, b.APIKey, backendHTTP))
		slog.Info("backend registered", "name", b.Name, "role", b.Role, "url", b.URL)
	}
	contentStore := dispatch.NewContentStore(cfg.ContentStore.URL, backendHTTP)

	conversations := store.NewTTL[string](cfg.Stores.ConversationTTL())
	slots := store.NewTTL[map[string]string](cfg.Stores.ContentTTL())
	analysis := store.NewTTL[string](cfg.Stores.ContentTTL())
	images := store.NewTTL[[]byte](cfg.Stores.ImageTTL())
	for _, s := range []interface{ StartSweeper(context.Context, time.Duration) }{
		conversations, slots, analysis, images,
	} {
		s.StartSweeper(ctx, sweepInterval)
	}

	rt := router.New(inventory, lineClient, cfg.Stores.ModeTTL())
	eng := engine.New(engine.Options{
		Router:         rt,
		Dispatcher:     dispatch.NewDispatcher(cfg.DispatchTimeout(), conversations),
		Backends:       backends,
		Messenger:      lineClient,
		ContentStore:   contentStore,
		Images:         images,
		Slots:          slots,
		Analysis:       analysis,
		PublicBaseURL:  cfg.Server.PublicBaseURL,
		DebounceWindow: cfg.DebounceWindow(),
		MaxReleases:    int64(cfg.Debounce.MaxConcurrent),
		CallTimeout:    cfg.DispatchTimeout(),
	})
	defer eng.Stop()

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := server.New(addr, cfg.Line.ChannelSecret, eng, images, cfg.Server.WebhookRatePerMinute)

	slog.Info("fridgeline starting", "version", Version, "addr", addr, "backends", len(backends))
	if err := srv.Start(ctx); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
	slog.Info("fridgeline stopped")
}

// unavailableInventory answers every inventory call with a miss so the
// conversational flows keep working without a database.
type unavailableInventory struct{}

func (unavailableInventory) ListByOwner(context.Context, string) ([]pantry.Record, error) {
	return nil, nil
}

func (unavailableInventory) DeleteByID(context.Context, string, int64) (pantry.Record, error) {
	return pantry.Record{}, pantry.ErrNotFound
}

func (unavailableInventory) DecrementByID(context.Context, string, int64, float64) (pantry.DeductResult, error) {
	return pantry.DeductResult{}, pantry.ErrNotFound
}

func (unavailableInventory) DeductOldestFirst(context.Context, string, string, float64) (pantry.DeductResult, error) {
	return pantry.DeductResult{}, nil
}
