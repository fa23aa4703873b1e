package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/sganis/dutopia/pkg/age"
	"github.com/sganis/dutopia/pkg/logging"
	"github.com/sganis/dutopia/pkg/sum"
)

var (
	sumInput      string
	sumOutput     string
	sumAges       string
	sumCumulative bool
	sumNow        int64
)

var sumCmd = &cobra.Command{
	Use:   "sum",
	Short: "Aggregate a raw artifact into per-folder rows",
	Long: `Fold raw scan records into one row per (folder, user, age bucket).

By default each record lands on its immediate parent folder only;
the serve stage rolls subtrees up at load time. With --cumulative
every record is folded into its whole ancestor chain instead,
producing a self-contained report.

Records owned by unresolvable user ids are aggregated under the UNK
user, and the ids are listed in a .unk.csv sidecar next to the
output.`,
	Args: cobra.NoArgs,
	RunE: runSum,
}

func init() {
	sumCmd.Flags().StringVarP(&sumInput, "input", "i", "scan.csv", "raw artifact (.csv or .zst)")
	sumCmd.Flags().StringVarP(&sumOutput, "output", "o", "agg.csv", "aggregated output")
	sumCmd.Flags().StringVar(&sumAges, "ages", "60,600", "age bucket boundaries in days (young,old)")
	sumCmd.Flags().BoolVar(&sumCumulative, "cumulative", false, "fold records into every ancestor folder")
	sumCmd.Flags().Int64Var(&sumNow, "now", 0, "reference epoch seconds for age bucketing (0 = current time)")
	rootCmd.AddCommand(sumCmd)
}

func runSum(cmd *cobra.Command, args []string) error {
	ages, err := age.ParsePair(sumAges)
	if err != nil {
		return err
	}
	cfg := sum.Config{Now: sumNow, Ages: ages, Cumulative: sumCumulative}

	log := logging.WithPhase("sum")
	log.Info().Str("input", sumInput).Msg("aggregating")
	start := time.Now()
	res, err := sum.Run(cfg, sumInput, sumOutput)
	if err != nil {
		return err
	}
	ev := logging.PhaseComplete(log, "sum", time.Since(start)).
		Uint64("rows", res.Rows).
		Uint64("skipped", res.Skipped).
		Int("folders", res.Folders).
		Str("output", sumOutput)
	if len(res.Unknown) > 0 {
		ev = ev.Int("unknown_uids", len(res.Unknown))
	}
	ev.Send()
	return nil
}
