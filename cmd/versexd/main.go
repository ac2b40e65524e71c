package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/versemarket/versex/params"
	"github.com/versemarket/versex/pkg/api"
	"github.com/versemarket/versex/pkg/exchange/account"
	"github.com/versemarket/versex/pkg/exchange/algo"
	"github.com/versemarket/versex/pkg/exchange/engine"
	"github.com/versemarket/versex/pkg/exchange/market"
	"github.com/versemarket/versex/pkg/storage"
	"github.com/versemarket/versex/pkg/util"
)

func main() {
	cfg, err := params.Load("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var logger *zap.Logger
	if cfg.LogPath != "" {
		logger, err = util.NewLoggerWithFile(cfg.LogPath)
	} else {
		logger, err = util.NewLogger()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// ---- Verse catalog ----
	verses := market.NewRegistry()
	if err := seedVerses(verses); err != nil {
		logger.Fatal("seed verses", zap.Error(err))
	}
	logger.Info("verse catalog loaded", zap.Int("verses", verses.Count()))

	// ---- Positions ----
	accounts, err := account.NewManager(logger, filepath.Join(cfg.Storage.DataDir, "accounts"))
	if err != nil {
		logger.Fatal("account store", zap.Error(err))
	}
	defer accounts.Close()

	// ---- Journal ----
	var journal *storage.Journal
	opts := engine.Options{RecentTrades: cfg.Engine.RecentTrades}
	if cfg.Storage.Journal {
		journal, err = storage.OpenJournal(filepath.Join(cfg.Storage.DataDir, "journal"))
		if err != nil {
			logger.Fatal("journal", zap.Error(err))
		}
		defer journal.Close()
		opts.Journal = journal
	}

	// ---- Risk gate ----
	if cfg.Engine.MaxExposure > 0 {
		opts.Risk = account.NewRiskGate(accounts, cfg.Engine.MaxExposure)
		logger.Info("risk gate enabled", zap.Int64("max_exposure", cfg.Engine.MaxExposure))
	}

	// ---- Engine + scheduler + API ----
	eng := engine.New(logger, verses, accounts, opts)
	scheduler := algo.NewScheduler(logger, clock.New(), eng)
	eng.AttachScheduler(scheduler)

	server := api.NewServer(logger, eng, verses, accounts, journal, cfg.Server.AllowOrigins)
	eng.AttachNotifier(api.NewWSNotifier(server.Hub()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go scheduler.Run(ctx, cfg.Engine.TickResolution)

	logger.Info("versexd starting",
		zap.String("listen", cfg.Server.ListenAddr),
		zap.Duration("tick_resolution", cfg.Engine.TickResolution))

	if err := server.Start(cfg.Server.ListenAddr); err != nil {
		logger.Fatal("server", zap.Error(err))
	}
}

// seedVerses registers the devnet catalog
func seedVerses(r *market.Registry) error {
	seeds := []struct {
		id       string
		title    string
		outcomes uint8
	}{
		{"verse-btc-100k-2026", "Will BTC close above $100k in 2026?", 2},
		{"verse-us-election-2028", "2028 US presidential election winner", 4},
		{"verse-wc-2026", "2026 World Cup winner", 32},
	}
	for _, s := range seeds {
		v, err := market.NewVerse(s.id, s.title, s.outcomes, market.DefaultParams)
		if err != nil {
			return err
		}
		if err := r.Register(v); err != nil {
			return err
		}
	}
	return nil
}
