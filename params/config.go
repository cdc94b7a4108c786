package params

import (
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Exchange struct {
	// Address is the exchange's own custody account on the token ledger.
	Address common.Address
	// FeeAccount receives the fee on every fill. Fixed at construction.
	FeeAccount common.Address
	// FeePercent is the integer percentage of the filler's acquired
	// amount charged as fee. Fixed at construction.
	FeePercent int64
}

type Node struct {
	APIListen string // REST/ws listen address
	DBPath    string // pebble journal path
	LogFile   string // operation log path
	SeedDemo  bool   // deploy demo tokens at startup (devnet)
}

type Config struct {
	Exchange Exchange
	Node     Node
}

func Default() Config {
	return Config{
		Exchange: Exchange{
			Address:    common.HexToAddress("0xE8c4afe8F4A0D8D1A2A4b046dD6a7F7C48cB8E1d"),
			FeeAccount: common.HexToAddress("0xFee0000000000000000000000000000000000000"),
			FeePercent: 10,
		},
		Node: Node{
			APIListen: ":8080",
			DBPath:    "data/exchange.db",
			LogFile:   "data/exchanged.log",
			SeedDemo:  true,
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if addr := os.Getenv("EXCHANGE_ADDRESS"); common.IsHexAddress(addr) {
		cfg.Exchange.Address = common.HexToAddress(addr)
	}
	if addr := os.Getenv("FEE_ACCOUNT"); common.IsHexAddress(addr) {
		cfg.Exchange.FeeAccount = common.HexToAddress(addr)
	}
	if pct := os.Getenv("FEE_PERCENT"); pct != "" {
		if n, err := strconv.ParseInt(pct, 10, 64); err == nil && n >= 0 && n <= 100 {
			cfg.Exchange.FeePercent = n
		}
	}

	if listen := os.Getenv("API_LISTEN"); listen != "" {
		cfg.Node.APIListen = listen
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		cfg.Node.DBPath = path
	}
	if path := os.Getenv("LOG_FILE"); path != "" {
		cfg.Node.LogFile = path
	}
	if seed := os.Getenv("SEED_DEMO"); seed != "" {
		cfg.Node.SeedDemo = seed == "true"
	}

	return cfg
}
