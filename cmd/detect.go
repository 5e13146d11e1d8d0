package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/gatecrash/internal/browser"
	"github.com/xkilldash9x/gatecrash/internal/captcha/classifier"
	"github.com/xkilldash9x/gatecrash/internal/captcha/detector"
	"github.com/xkilldash9x/gatecrash/internal/observability"
)

var detectTimeout time.Duration

var detectCmd = &cobra.Command{
	Use:   "detect <url>",
	Short: "Report whether the URL presents a challenge, without solving it.",
	Args:  cobra.ExactArgs(1),
	RunE:  runDetect,
}

func init() {
	detectCmd.Flags().DurationVarP(&detectTimeout, "timeout", "t", 2*time.Minute, "detection deadline")
	rootCmd.AddCommand(detectCmd)
}

func runDetect(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()
	defer observability.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), detectTimeout)
	defer cancel()

	manager := browser.NewManager(cfg.Browser, logger)
	defer manager.Shutdown()

	tab, err := manager.NewTab(ctx)
	if err != nil {
		return fmt.Errorf("failed to open browser tab: %w", err)
	}
	if err := manager.Navigate(ctx, tab.ID, args[0]); err != nil {
		return err
	}

	dom := browser.NewInspector(manager)
	detection := detector.New(dom, logger).Detect(ctx, tab.ID)

	out := map[string]any{"detection": detection}
	if detection.HasChallenge {
		out["classification"] = classifier.New(dom, logger).Classify(ctx, tab.ID, detection)
	}
	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
