package setup

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/aitradehq/tradeflow/config"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// generatedConfig mirrors the yaml layout config.Get reads back.
type generatedConfig struct {
	BackendURL      string       `yaml:"backend_url"`
	ContractAddress string       `yaml:"contract_address"`
	Chain           config.Chain `yaml:"chain"`
	Symbol          string       `yaml:"symbol"`
	PollInterval    string       `yaml:"poll_interval"`
	MinTradeAmount  string       `yaml:"min_trade_amount"`
	ListenAddr      string       `yaml:"listen_addr"`
	StateDir        string       `yaml:"state_dir"`
}

// RunTUI launches the terminal configuration wizard.
func RunTUI() error {
	var (
		backendURL      string
		contractAddress string
		symbol          string
		network         string
		pollIntervalStr string
		minAmountStr    string
		listenAddr      string
		confirm         bool
	)

	// defaults
	backendURL = "http://localhost:8000"
	symbol = "BTC"
	pollIntervalStr = "10s"
	minAmountStr = "0.01"
	listenAddr = ":8080"

	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("TRADEFLOW CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Let's wire your trade client up.\n"))

	fmt.Println(stepStyle.Render("STEP 1: BACKEND"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Backend API URL").
				Description("Base URL of the platform backend").
				Value(&backendURL).
				Validate(func(s string) error {
					if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
						return fmt.Errorf("must start with http:// or https://")
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("TRADEFLOW CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 2: CONTRACT"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Trading Contract Address").
				Description("0x-prefixed address of the deployed trading contract").
				Value(&contractAddress).
				Validate(func(s string) error {
					if !strings.HasPrefix(s, "0x") || len(s) != 42 {
						return fmt.Errorf("must be a 0x-prefixed 20-byte hex address")
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("TRADEFLOW CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 3: NETWORK"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Target Network").
				Options(
					huh.NewOption("BSC Testnet (chain 97)", "bsc-testnet"),
				).
				Value(&network),
		),
	).Run()
	if err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("TRADEFLOW CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 4: TRADING"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Instrument Symbol").
				Description("e.g. BTC, ETH, BNB").
				Value(&symbol).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("symbol cannot be empty")
					}
					return nil
				}),
			huh.NewInput().
				Title("Poll Interval").
				Description("Duration string (e.g. 10s, 30s, 1m)").
				Value(&pollIntervalStr).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
			huh.NewInput().
				Title("Minimum Trade Amount").
				Description("Smallest accepted trade size in tokens").
				Value(&minAmountStr).
				Validate(validateMinAmount),
			huh.NewInput().
				Title("Status Server Address").
				Description("Listen address for the status endpoints (e.g. :8080)").
				Value(&listenAddr),
		),
	).Run()
	if err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("TRADEFLOW CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("FINAL CONFIRMATION"))

	summary := fmt.Sprintf(
		"Backend: %s\nContract: %s\nNetwork: %s\nSymbol: %s\nInterval: %s\nMin amount: %s\n",
		backendURL, contractAddress, network, strings.ToUpper(symbol), pollIntervalStr, minAmountStr,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	gen := generatedConfig{
		BackendURL:      backendURL,
		ContractAddress: contractAddress,
		Chain:           config.BSCTestnet(),
		Symbol:          strings.ToUpper(strings.TrimSpace(symbol)),
		PollInterval:    pollIntervalStr,
		MinTradeAmount:  minAmountStr,
		ListenAddr:      listenAddr,
		StateDir:        "./state",
	}

	data, err := yaml.Marshal(gen)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}

	filename := "config.gen.yaml"
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting client...", filename)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return nil
}

func validateMinAmount(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("must be positive")
	}
	return nil
}
