package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/gattcache/internal/device"
	"github.com/srg/gattcache/pkg/config"
)

// exploreCmd represents the explore command
var exploreCmd = &cobra.Command{
	Use:   "explore <address>",
	Short: "Connect to an endpoint and print its attribute tree",
	Long: `Scan until the endpoint with the given address is staged, connect to it,
wait for the discovery cascade to commit and print the committed services,
characteristics and descriptors with decoded values.

With --read every readable characteristic is read before printing.`,
	Example: `  gattcache explore AA:BB:CC:DD:EE:FF
  gattcache explore AA:BB:CC:DD:EE:FF --read --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runExplore,
}

var (
	exploreFormat         string
	exploreRead           bool
	exploreTimeout        time.Duration
	exploreConnectTimeout time.Duration
	exploreServices       []string
	exploreCharacteristic []string
)

func init() {
	addExploreFlags(exploreCmd)
}

func addExploreFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&exploreFormat, "format", "f", "tree", "Output format (tree, json)")
	cmd.Flags().BoolVarP(&exploreRead, "read", "r", false, "Read every readable characteristic before printing")
	cmd.Flags().DurationVarP(&exploreTimeout, "timeout", "t", 30*time.Second, "Overall time limit for finding, connecting and reading")
	cmd.Flags().DurationVar(&exploreConnectTimeout, "connect-timeout", 10*time.Second, "Connect attempt timeout")
	cmd.Flags().StringSliceVarP(&exploreServices, "services", "s", nil, "Only discover these service UUIDs")
	cmd.Flags().StringSliceVarP(&exploreCharacteristic, "characteristics", "c", nil, "Only discover these characteristic UUIDs")
}

// applyExploreFlags narrows the scan policy to address and applies the flags set
// on the command line.
func applyExploreFlags(cmd *cobra.Command, cfg *config.Config, address string) error {
	flags := cmd.Flags()
	if flags.Changed("connect-timeout") {
		cfg.ConnectTimeout = exploreConnectTimeout
	}
	if flags.Changed("services") && len(exploreServices) > 0 {
		uuids, err := device.ValidateUUID(exploreServices...)
		if err != nil {
			return fmt.Errorf("invalid service UUID: %w", err)
		}
		cfg.Scan.ServiceUUIDs = uuids
	}
	if flags.Changed("characteristics") && len(exploreCharacteristic) > 0 {
		uuids, err := device.ValidateUUID(exploreCharacteristic...)
		if err != nil {
			return fmt.Errorf("invalid characteristic UUID: %w", err)
		}
		cfg.Scan.CharacteristicUUIDs = uuids
	}

	// The address was asked for by name, so only the allow-list filters it
	cfg.Scan.EndpointAllowList = []string{address}
	cfg.Scan.AllowEmptyNames = true
	cfg.Scan.MinimumRSSI = -127
	cfg.Scan.ConnectableOnly = false
	return cfg.Validate()
}

func runExplore(cmd *cobra.Command, args []string) error {
	address := args[0]
	if err := validFormat(exploreFormat, "tree", "json"); err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyExploreFlags(cmd, cfg, address); err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if exploreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, exploreTimeout)
		defer cancel()
	}

	s, err := openSession(cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	progress := newCommandProgress(cmd, "Exploring "+address, "scanning", 0)
	progress.Start()
	defer progress.Stop()

	rec, err := s.find(ctx, address)
	if err != nil {
		return err
	}

	progress.SetPhase("connecting")
	p, err := s.connect(ctx, rec)
	if err != nil {
		return fmt.Errorf("failed to explore %s: %w", rec.ID(), err)
	}
	defer func() {
		if err := rec.Disconnect(); err != nil {
			logger.WithError(err).Warn("Failed to disconnect")
		}
	}()

	if exploreRead {
		progress.SetPhase("reading")
		if err := s.readAll(ctx, p); err != nil {
			return fmt.Errorf("failed to read %s: %w", rec.ID(), err)
		}
	}

	snapshot := device.PeripheralSnapshot(p)
	progress.Stop()
	return printPeripheral(cmd.OutOrStdout(), snapshot, exploreFormat)
}
