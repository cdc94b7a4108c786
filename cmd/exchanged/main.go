package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/custodex/params"
	"github.com/uhyunpark/custodex/pkg/api"
	"github.com/uhyunpark/custodex/pkg/exchange"
	"github.com/uhyunpark/custodex/pkg/storage"
	"github.com/uhyunpark/custodex/pkg/token"
	"github.com/uhyunpark/custodex/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	// ---- Token ledger ----
	registry := token.NewRegistry(logger)
	if cfg.Node.SeedDemo {
		seedDemoTokens(registry, sugar)
	}

	// ---- Durability ----
	store, err := storage.Open(cfg.Node.DBPath)
	if err != nil {
		sugar.Fatalw("store_open_failed", "path", cfg.Node.DBPath, "err", err)
	}
	defer store.Close()

	snap, err := store.Load()
	if err != nil {
		sugar.Fatalw("store_load_failed", "err", err)
	}

	// ---- Exchange core ----
	ex, err := exchange.New(exchange.Options{
		Address:    cfg.Exchange.Address,
		FeeAccount: cfg.Exchange.FeeAccount,
		FeePercent: cfg.Exchange.FeePercent,
		Ledger:     registry,
		Clock:      util.RealClock{},
		Logger:     logger,
		Journal:    store,
	})
	if err != nil {
		sugar.Fatalw("exchange_init_failed", "err", err)
	}
	ex.Restore(snap)
	sugar.Infow("exchange_ready",
		"fee_account", cfg.Exchange.FeeAccount.Hex(),
		"fee_percent", cfg.Exchange.FeePercent,
		"orders", ex.OrderCount(),
		"events", ex.Feed().Len())

	// ---- API ----
	server := api.NewServer(ex, registry, logger)
	go func() {
		if err := server.Start(cfg.Node.APIListen); err != nil {
			sugar.Fatalw("api_failed", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	sugar.Infow("shutting_down", "signal", sig.String())
}

// seedDemoTokens deploys two demo assets and funds a couple of dev
// accounts, mirroring the devnet fixtures the frontend expects.
func seedDemoTokens(registry *token.Registry, sugar *zap.SugaredLogger) {
	deployer := common.HexToAddress("0xDe91000000000000000000000000000000000001")
	alice := common.HexToAddress("0xA11CE00000000000000000000000000000000001")
	bob := common.HexToAddress("0xB0B0000000000000000000000000000000000001")

	const supply = 1_000_000_000_000 // 1M units at 6 display decimals

	for _, asset := range []struct{ name, symbol string }{
		{"Custodex Token", "CDX"},
		{"Mock Dollar", "mUSD"},
	} {
		addr, err := registry.Deploy(deployer, asset.name, asset.symbol, supply)
		if err != nil {
			sugar.Fatalw("seed_deploy_failed", "symbol", asset.symbol, "err", err)
		}
		// Split some supply to the dev accounts.
		for _, acct := range []common.Address{alice, bob} {
			if err := registry.Transfer(addr, deployer, acct, supply/10); err != nil {
				sugar.Fatalw("seed_transfer_failed", "symbol", asset.symbol, "err", err)
			}
		}
		sugar.Infow("seeded_token", "symbol", asset.symbol, "address", addr.Hex())
	}
}
