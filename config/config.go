package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Chain holds the fixed parameter set used when asking the wallet provider to
// add the target network (wallet_addEthereumChain equivalent).
type Chain struct {
	ID               int64  `yaml:"id"`
	Name             string `yaml:"name"`
	RPCURL           string `yaml:"rpc_url"`
	ExplorerURL      string `yaml:"explorer_url"`
	CurrencyName     string `yaml:"currency_name"`
	CurrencySymbol   string `yaml:"currency_symbol"`
	CurrencyDecimals int    `yaml:"currency_decimals"`
}

// Config is the runtime configuration for the trade client.
type Config struct {
	BackendURL      string
	ContractAddress string
	Chain           Chain
	Symbol          string
	PollInterval    time.Duration
	RequestTimeout  time.Duration
	BalanceTimeout  time.Duration
	MinTradeAmount  decimal.Decimal
	MinGasBalance   decimal.Decimal
	StateDir        string
	ListenAddr      string
	TLSDomains      []string
	TLSCacheDir     string
}

type configTmp struct {
	BackendURL         string   `yaml:"backend_url"`
	ContractAddress    string   `yaml:"contract_address"`
	Chain              Chain    `yaml:"chain"`
	Symbol             string   `yaml:"symbol,omitempty"`
	PollIntervalStr    string   `yaml:"poll_interval,omitempty"`
	RequestTimeoutStr  string   `yaml:"request_timeout,omitempty"`
	BalanceTimeoutStr  string   `yaml:"balance_timeout,omitempty"`
	MinTradeAmountStr  string   `yaml:"min_trade_amount,omitempty"`
	MinGasBalanceStr   string   `yaml:"min_gas_balance,omitempty"`
	StateDir           string   `yaml:"state_dir,omitempty"`
	ListenAddr         string   `yaml:"listen_addr,omitempty"`
	TLSDomains         []string `yaml:"tls_domains,omitempty"`
	TLSCacheDir        string   `yaml:"tls_cache_dir,omitempty"`
}

// BSCTestnet is the default target network, matching the deployed contract.
func BSCTestnet() Chain {
	return Chain{
		ID:               97,
		Name:             "BSC Testnet",
		RPCURL:           "https://data-seed-prebsc-1-s1.binance.org:8545",
		ExplorerURL:      "https://testnet.bscscan.com",
		CurrencyName:     "BNB",
		CurrencySymbol:   "tBNB",
		CurrencyDecimals: 18,
	}
}

// Get loads configuration from --config yaml when provided, else from flags.
func Get() (Config, error) {
	configPath := flag.String("config", "", "path to yaml config")
	backendURL := flag.String("backend", "http://localhost:8000", "backend API base URL")
	contract := flag.String("contract", "", "trading contract address")
	symbol := flag.String("symbol", "BTC", "selected instrument symbol")
	pollInterval := flag.Duration("pollinterval", 10*time.Second, "market poll interval")
	listenAddr := flag.String("listen", ":8080", "status server listen address")
	flag.Parse()

	if *configPath != "" {
		return getYaml(*configPath)
	}

	conf := Config{
		BackendURL:      strings.TrimRight(*backendURL, "/"),
		ContractAddress: *contract,
		Chain:           BSCTestnet(),
		Symbol:          *symbol,
		PollInterval:    *pollInterval,
		ListenAddr:      *listenAddr,
	}
	conf.applyDefaults()

	return conf, conf.validate()
}

func getYaml(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var tmp configTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, err
	}

	conf := Config{
		BackendURL:      strings.TrimRight(tmp.BackendURL, "/"),
		ContractAddress: tmp.ContractAddress,
		Chain:           tmp.Chain,
		Symbol:          tmp.Symbol,
		StateDir:        tmp.StateDir,
		ListenAddr:      tmp.ListenAddr,
		TLSDomains:      tmp.TLSDomains,
		TLSCacheDir:     tmp.TLSCacheDir,
	}

	if conf.Chain == (Chain{}) {
		conf.Chain = BSCTestnet()
	}

	if conf.PollInterval, err = parseDuration("poll_interval", tmp.PollIntervalStr); err != nil {
		return Config{}, err
	}
	if conf.RequestTimeout, err = parseDuration("request_timeout", tmp.RequestTimeoutStr); err != nil {
		return Config{}, err
	}
	if conf.BalanceTimeout, err = parseDuration("balance_timeout", tmp.BalanceTimeoutStr); err != nil {
		return Config{}, err
	}

	if tmp.MinTradeAmountStr != "" {
		conf.MinTradeAmount, err = decimal.NewFromString(tmp.MinTradeAmountStr)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'min_trade_amount' param in yaml config (must be a decimal), error: %w", err)
		}
	}
	if tmp.MinGasBalanceStr != "" {
		conf.MinGasBalance, err = decimal.NewFromString(tmp.MinGasBalanceStr)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'min_gas_balance' param in yaml config (must be a decimal), error: %w", err)
		}
	}

	conf.applyDefaults()

	return conf, conf.validate()
}

func parseDuration(name, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("incorrect '%s' param in yaml config (must be a duration like 10s), error: %w", name, err)
	}
	return d, nil
}

func (c *Config) applyDefaults() {
	if c.Symbol == "" {
		c.Symbol = "BTC"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Second
	}
	if c.BalanceTimeout <= 0 {
		c.BalanceTimeout = 5 * time.Second
	}
	if c.MinTradeAmount.IsZero() {
		c.MinTradeAmount = decimal.NewFromFloat(0.01)
	}
	if c.MinGasBalance.IsZero() {
		c.MinGasBalance = decimal.NewFromFloat(0.001)
	}
	if c.StateDir == "" {
		c.StateDir = "./state"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	c.Symbol = strings.ToUpper(strings.TrimSpace(c.Symbol))
}

func (c Config) validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("backend_url is required")
	}
	if c.ContractAddress == "" {
		return fmt.Errorf("contract_address is required")
	}
	if c.Chain.ID == 0 {
		return fmt.Errorf("chain.id is required")
	}
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if c.MinTradeAmount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("min_trade_amount must be positive, got %s", c.MinTradeAmount.String())
	}
	return nil
}
