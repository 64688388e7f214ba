package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirouk/trade-engine/internal/appconfig"
)

const defaultConfigPath = "engine.yaml"

func main() {
	reader := bufio.NewReader(os.Stdin)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	for {
		fmt.Println("\n=== Engine Control ===")
		fmt.Println("1) Show configuration summary")
		fmt.Println("2) Edit cycle knobs")
		fmt.Println("3) Edit risk guard")
		fmt.Println("4) Edit document paths")
		fmt.Println("5) Save config")
		fmt.Println("6) Launch reconciler")
		fmt.Println("7) Reload config from disk")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(input)

		switch choice {
		case "1":
			printSummary(cfg)
		case "2":
			editCycle(reader, cfg)
		case "3":
			editRisk(reader, cfg)
		case "4":
			editPaths(reader, cfg)
		case "5":
			if err := saveConfig(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved")
			}
		case "6":
			launchReconciler(reader)
		case "7":
			reloaded, err := loadConfig()
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
			} else {
				cfg = reloaded
				fmt.Println("config reloaded")
			}
		case "0":
			return
		default:
			fmt.Println("unknown option")
		}
	}
}

func printSummary(cfg *appconfig.Config) {
	fmt.Println("\n--- Configuration Summary ---")
	fmt.Printf("App: %s (%s), log level %s, metrics at %s\n", cfg.App.Name, cfg.App.Env, cfg.App.LogLevel, cfg.App.MetricsAddr)
	fmt.Printf("Cycle period: %s | per-account symbol concurrency: %d | max retries: %d\n",
		cfg.Cycle.Period, cfg.Cycle.PerAccountSymbolConcurrency, cfg.Cycle.MaxReconcileRetries)
	fmt.Printf("Adapter fetch timeout: %s | order timeout: %s | soft deadline: %s\n",
		cfg.Cycle.AdapterFetchTimeout, cfg.Cycle.OrderTimeout, cfg.Cycle.SoftDeadline)
	fmt.Printf("Max notional per order: $%.2f (0 = unguarded)\n", cfg.Risk.MaxNotionalPerOrder)
	fmt.Printf("Profiling enabled: %v (server %s)\n", cfg.Profiling.Enabled, cfg.Profiling.ServerAddr)
	fmt.Printf("Weight config: %s\n", cfg.Paths.WeightConfig)
	fmt.Printf("Asset mapping: %s\n", cfg.Paths.AssetMapping)
	fmt.Printf("Credentials: %s\n", cfg.Paths.Credentials)
	fmt.Printf("Execution cache dir: %s\n", cfg.Paths.ExecutionCacheDir)
	fmt.Printf("Raw signals dir: %s\n", cfg.Paths.RawSignalsDir)
}

func editCycle(reader *bufio.Reader, cfg *appconfig.Config) {
	fmt.Println("\n--- Edit Cycle Knobs ---")
	cfg.Cycle.Period = promptDuration(reader, "Cycle period", cfg.Cycle.Period)
	cfg.Cycle.PerAccountSymbolConcurrency = int(promptFloat(reader, "Per-account symbol concurrency", float64(cfg.Cycle.PerAccountSymbolConcurrency)))
	cfg.Cycle.MaxReconcileRetries = int(promptFloat(reader, "Max reconcile retries", float64(cfg.Cycle.MaxReconcileRetries)))
	cfg.Cycle.AdapterFetchTimeout = promptDuration(reader, "Adapter fetch timeout", cfg.Cycle.AdapterFetchTimeout)
	cfg.Cycle.OrderTimeout = promptDuration(reader, "Order timeout", cfg.Cycle.OrderTimeout)
	cfg.Cycle.SoftDeadline = promptDuration(reader, "Cycle soft deadline", cfg.Cycle.SoftDeadline)
}

func editRisk(reader *bufio.Reader, cfg *appconfig.Config) {
	fmt.Println("\n--- Edit Risk Guard ---")
	cfg.Risk.MaxNotionalPerOrder = promptFloat(reader, "Max notional per order (0 = unguarded)", cfg.Risk.MaxNotionalPerOrder)
}

func editPaths(reader *bufio.Reader, cfg *appconfig.Config) {
	fmt.Println("\n--- Edit Document Paths ---")
	cfg.Paths.WeightConfig = promptString(reader, "Weight config path", cfg.Paths.WeightConfig)
	cfg.Paths.AssetMapping = promptString(reader, "Asset mapping path", cfg.Paths.AssetMapping)
	cfg.Paths.Credentials = promptString(reader, "Credentials path", cfg.Paths.Credentials)
	cfg.Paths.ExecutionCacheDir = promptString(reader, "Execution cache dir", cfg.Paths.ExecutionCacheDir)
	cfg.Paths.RawSignalsDir = promptString(reader, "Raw signals dir", cfg.Paths.RawSignalsDir)
}

func launchReconciler(reader *bufio.Reader) {
	fmt.Println("Launching reconciler (Ctrl+C to stop)...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "run", "./cmd/reconciler")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start reconciler: %v\n", err)
		return
	}

	go func() {
		_ = cmd.Wait()
		cancel()
	}()

	fmt.Print("\nPress ENTER to stop the reconciler and return to menu...")
	_, _ = reader.ReadString('\n')
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func promptFloat(reader *bufio.Reader, label string, current float64) float64 {
	fmt.Printf("%s [%.2f]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseFloat(line, 64)
	if err != nil {
		fmt.Printf("invalid number, keeping %.2f\n", current)
		return current
	}
	return val
}

func promptDuration(reader *bufio.Reader, label string, current time.Duration) time.Duration {
	fmt.Printf("%s [%s]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := time.ParseDuration(line)
	if err != nil {
		fmt.Printf("invalid duration, keeping %s\n", current)
		return current
	}
	return val
}

func promptString(reader *bufio.Reader, label string, current string) string {
	fmt.Printf("%s [%s]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	return line
}

func loadConfig() (*appconfig.Config, error) {
	return appconfig.Load(locateConfig())
}

func saveConfig(cfg *appconfig.Config) error {
	return appconfig.Save(locateConfig(), cfg)
}

func locateConfig() string {
	if filepath.IsAbs(defaultConfigPath) {
		return defaultConfigPath
	}
	return filepath.Clean(defaultConfigPath)
}
