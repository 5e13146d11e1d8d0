package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
	"github.com/xkilldash9x/gatecrash/internal/browser"
	"github.com/xkilldash9x/gatecrash/internal/camera"
	"github.com/xkilldash9x/gatecrash/internal/captcha"
	"github.com/xkilldash9x/gatecrash/internal/captcha/providers"
	"github.com/xkilldash9x/gatecrash/internal/humanoid"
	"github.com/xkilldash9x/gatecrash/internal/observability"
	"github.com/xkilldash9x/gatecrash/internal/perception"
)

var (
	solveProvider string
	solveTimeout  time.Duration
	solveJSON     bool
)

var solveCmd = &cobra.Command{
	Use:   "solve <url>",
	Short: "Open the URL and solve whatever challenge it presents.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSolve,
}

func init() {
	solveCmd.Flags().StringVarP(&solveProvider, "provider", "p", "auto",
		"provider strategy (auto, owl, recaptcha, cloudflare, hcaptcha)")
	solveCmd.Flags().DurationVarP(&solveTimeout, "timeout", "t", 5*time.Minute,
		"overall solve deadline")
	solveCmd.Flags().BoolVar(&solveJSON, "json", false, "print the result as JSON")
	rootCmd.AddCommand(solveCmd)
}

func runSolve(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()
	defer observability.Sync()

	url := args[0]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, solveTimeout)
	defer cancel()

	manager := browser.NewManager(cfg.Browser, logger)
	defer manager.Shutdown()

	tab, err := manager.NewTab(ctx)
	if err != nil {
		return fmt.Errorf("failed to open browser tab: %w", err)
	}

	var perceptionClient schemas.PerceptionClient
	if cfg.Perception.APIKey != "" {
		client, err := perception.NewGeminiClient(cfg.Perception, logger)
		if err != nil {
			return fmt.Errorf("failed to build perception client: %w", err)
		}
		perceptionClient = client
	} else {
		logger.Warn("No perception API key configured; only checkbox and auto-verify challenges can succeed")
	}

	input := browser.NewInput(tab)
	env := &providers.Env{
		DOM:        browser.NewInspector(manager),
		Capture:    browser.NewCapturer(tab),
		Input:      input,
		Annotator:  browser.NewAnnotator(manager),
		Perception: perceptionClient,
		Cameras:    camera.NewRegistry(logger),
		Pumper:     browser.NewPumper(manager),
		Human:      humanoid.New(cfg.Humanoid, input, logger),
		Solver:     cfg.Solver,
		Perceptive: cfg.Perception,
		Logger:     logger,
	}
	pipeline := captcha.New(env)

	if err := manager.Navigate(ctx, tab.ID, url); err != nil {
		return err
	}

	result := pipeline.Solve(ctx, tab.ID, schemas.ProviderType(solveProvider))

	if solveJSON {
		encoded, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(encoded))
	} else {
		printResult(result)
	}

	if !result.Success {
		logger.Warn("Solve did not succeed", zap.String("error", result.ErrorMessage))
		os.Exit(1)
	}
	return nil
}

func printResult(result schemas.SolveResult) {
	status := "FAILED"
	if result.Success {
		status = "SOLVED"
	}
	fmt.Printf("%s  confidence=%.2f attempts=%d\n", status, result.Confidence, result.Attempts)
	if result.TargetDetected != "" {
		fmt.Printf("  target: %s\n", result.TargetDetected)
	}
	if len(result.SelectedIndices) > 0 {
		fmt.Printf("  tiles: %v\n", result.SelectedIndices)
	}
	if result.ErrorMessage != "" {
		fmt.Printf("  error: %s\n", result.ErrorMessage)
	}
	if result.NeedsSkip || result.NeedsRefresh {
		fmt.Printf("  escalation: needsSkip=%t needsRefresh=%t\n", result.NeedsSkip, result.NeedsRefresh)
	}
}
