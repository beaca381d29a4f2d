package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/gattcache/internal/device"
	"github.com/srg/gattcache/pkg/config"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE endpoints",
	Long: `Scan for Bluetooth Low Energy endpoints and list the ones staged by the
scan policy: name, address, signal strength, connectability and advertised
services.

Endpoints without a name, below the signal floor, not connectable (with
--connectable-only) or outside the --allow list are left out.`,
	Example: `  gattcache scan
  gattcache scan --duration 30s --min-rssi -70 --format json
  gattcache scan --services 180d --allow-empty-names`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration        time.Duration
	scanFormat          string
	scanServices        []string
	scanAllowList       []string
	scanMinRSSI         int
	scanAllowEmptyNames bool
	scanConnectableOnly bool
	scanNoDuplicates    bool
)

func init() {
	addScanFlags(scanCmd)
}

func addScanFlags(cmd *cobra.Command) {
	cmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration (0 scans until interrupted)")
	cmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	cmd.Flags().StringSliceVarP(&scanServices, "services", "s", nil, "Only scan for endpoints advertising these service UUIDs")
	cmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only stage endpoints with these addresses")
	cmd.Flags().IntVar(&scanMinRSSI, "min-rssi", -100, "Leave out endpoints weaker than this signal (dBm)")
	cmd.Flags().BoolVar(&scanAllowEmptyNames, "allow-empty-names", false, "Stage endpoints that advertise no name")
	cmd.Flags().BoolVar(&scanConnectableOnly, "connectable-only", false, "Only stage connectable endpoints")
	cmd.Flags().BoolVar(&scanNoDuplicates, "no-duplicates", true, "Filter duplicate advertisements")
}

// applyScanFlags overrides cfg with the scan flags set on the command line.
func applyScanFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("duration") {
		cfg.ScanDuration = scanDuration
	}
	if flags.Changed("services") && len(scanServices) > 0 {
		uuids, err := device.ValidateUUID(scanServices...)
		if err != nil {
			return fmt.Errorf("invalid service UUID: %w", err)
		}
		cfg.Scan.ServiceUUIDs = uuids
	}
	if flags.Changed("allow") {
		cfg.Scan.EndpointAllowList = scanAllowList
	}
	if flags.Changed("min-rssi") {
		cfg.Scan.MinimumRSSI = scanMinRSSI
	}
	if flags.Changed("allow-empty-names") {
		cfg.Scan.AllowEmptyNames = scanAllowEmptyNames
	}
	if flags.Changed("connectable-only") {
		cfg.Scan.ConnectableOnly = scanConnectableOnly
	}
	if flags.Changed("no-duplicates") {
		cfg.Scan.DuplicateFiltering = scanNoDuplicates
	}
	return cfg.Validate()
}

func runScan(cmd *cobra.Command, _ []string) error {
	if err := validFormat(scanFormat, "table", "json"); err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyScanFlags(cmd, cfg); err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	var progress *ProgressPrinter
	if cfg.ScanDuration > 0 {
		progress = newCommandProgress(cmd, "Scanning", "scanning", cfg.ScanDuration)
	} else {
		progress = newCommandProgress(cmd, "Scanning, Ctrl+C to stop", "scanning", 0)
	}
	progress.Start()
	err = s.scan(ctx, cfg.ScanDuration)
	progress.Stop()
	if err != nil {
		return err
	}

	staged := s.registry.Staged()
	records := make([]device.RecordJSON, 0, len(staged))
	for _, rec := range staged {
		records = append(records, device.RecordSnapshot(rec))
	}
	return printRecords(cmd.OutOrStdout(), records, scanFormat, time.Now())
}
