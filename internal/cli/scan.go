package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sganis/dutopia/pkg/fileutil"
	"github.com/sganis/dutopia/pkg/logging"
	"github.com/sganis/dutopia/pkg/row"
	"github.com/sganis/dutopia/pkg/scan"
)

var (
	scanOutput  string
	scanWorkers int
	scanSkip    string
	scanNoAtime bool
	scanShards  string
)

var scanCmd = &cobra.Command{
	Use:   "scan [roots...]",
	Short: "Walk filesystem trees into a raw record artifact",
	Long: `Walk one or more roots with a worker pool and write one record
per filesystem object. The output extension picks the encoding:
.csv is text, .zst is compressed binary.

With --no-atime, access times are zeroed and records sorted by path,
so two scans of an unchanged tree produce identical artifacts.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "scan.csv", "output artifact (.csv or .zst)")
	scanCmd.Flags().IntVarP(&scanWorkers, "workers", "w", scan.DefaultConfig().Workers, "worker pool size")
	scanCmd.Flags().StringVar(&scanSkip, "skip", "", "skip paths containing this substring")
	scanCmd.Flags().BoolVar(&scanNoAtime, "no-atime", false, "zero access times and sort for reproducible output")
	scanCmd.Flags().StringVar(&scanShards, "shard-dir", "", "directory for shard files (default: output directory)")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, roots []string) error {
	format, err := row.DetectFormat(scanOutput)
	if err != nil {
		return err
	}
	cfg := scan.DefaultConfig()
	cfg.Format = format
	cfg.Skip = scanSkip
	cfg.NoAtime = scanNoAtime
	if scanWorkers > 0 {
		cfg.Workers = scanWorkers
	}
	cfg.ShardDir = scanShards
	if cfg.ShardDir == "" {
		cfg.ShardDir = filepath.Dir(scanOutput)
	}

	log := logging.WithPhase("scan")
	log.Info().Strs("roots", roots).Int("workers", cfg.Workers).Msg("starting")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// stale shards from a crashed run with this pid
	if err := fileutil.CleanupTmpFiles(cfg.ShardDir, scan.ShardPattern()); err != nil {
		log.Warn().Err(err).Str("dir", cfg.ShardDir).Msg("tmp cleanup incomplete")
	}

	start := time.Now()
	session := scan.NewSession(cfg)
	progress := logging.NewProgressReporter("scan", session, logging.DefaultProgressInterval)
	progress.Start(ctx)
	shards, err := session.Run(ctx, roots)
	progress.Stop()
	if err != nil {
		scan.RemoveShards(shards)
		return err
	}
	if err := scan.MergeShards(scanOutput, shards, format, scanNoAtime); err != nil {
		return err
	}

	for _, w := range session.Warnings() {
		log.Debug().Str("path", w.Path).Str("class", string(w.Class)).Msg("skipped")
	}
	counts := session.Snapshot()
	logging.PhaseComplete(log, "scan", time.Since(start)).
		Uint64("files", session.Files()).
		Uint64("dirs", session.Dirs()).
		Uint64("errors", counts.Errors).
		Str("disk", humanize.IBytes(counts.Bytes)).
		Str("output", scanOutput).
		Send()
	if ctx.Err() != nil {
		return fmt.Errorf("scan interrupted: artifact %s is partial", scanOutput)
	}
	return nil
}
