package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sganis/dutopia/internal/api"
	"github.com/sganis/dutopia/pkg/age"
	"github.com/sganis/dutopia/pkg/index"
	"github.com/sganis/dutopia/pkg/logging"
)

var (
	serveInput string
	serveRaw   string
	serveAddr  string
	serveAges  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve subtree queries over an aggregated artifact",
	Long: `Load aggregated rows into an in-memory prefix tree, roll every
subtree up once, then answer folder and file queries over HTTP.

The tree is immutable while serving; rerun serve to pick up a new
artifact. Pass the raw artifact with --raw to enable per-file
listings on /api/files.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveInput, "input", "i", "agg.csv", "aggregated artifact")
	serveCmd.Flags().StringVar(&serveRaw, "raw", "", "raw artifact for file listings (optional)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().StringVar(&serveAges, "ages", "60,600", "age bucket boundaries in days (young,old)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ages, err := age.ParsePair(serveAges)
	if err != nil {
		return err
	}
	log := logging.WithPhase("serve")

	start := time.Now()
	ix, err := index.Load(serveInput)
	if err != nil {
		return err
	}
	if serveRaw != "" {
		if err := ix.LoadFiles(serveRaw); err != nil {
			return err
		}
	}
	logging.PhaseComplete(log, "load", time.Since(start)).
		Int("users", len(ix.Users())).
		Str("input", serveInput).
		Send()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := api.DefaultConfig()
	cfg.Addr = serveAddr
	cfg.Ages = ages
	return api.New(cfg, ix).Run(ctx)
}
