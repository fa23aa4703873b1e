package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sganis/dutopia/pkg/logging"
	"github.com/sganis/dutopia/pkg/row"
)

var (
	convertInput  string
	convertOutput string
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Re-encode a raw artifact between text and binary",
	Long: `Copy a raw artifact record by record, re-encoding it to the
format implied by the output extension. Rows that fail to parse
are skipped and counted.`,
	Args: cobra.NoArgs,
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringVarP(&convertInput, "input", "i", "", "input artifact (.csv or .zst)")
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "output artifact (.csv or .zst)")
	convertCmd.MarkFlagRequired("input")
	convertCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	log := logging.WithPhase("convert")
	start := time.Now()

	r, err := row.Open(convertInput)
	if err != nil {
		return err
	}
	defer r.Close()
	w, err := row.Create(convertOutput)
	if err != nil {
		return err
	}

	var rows, skipped uint64
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if errors.Is(err, row.ErrMalformed) {
			skipped++
			continue
		}
		if err != nil {
			w.Close()
			return fmt.Errorf("convert: %w", err)
		}
		if err := w.Write(&rec); err != nil {
			w.Close()
			return fmt.Errorf("convert: %w", err)
		}
		rows++
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("convert: no parseable records in %s", convertInput)
	}

	logging.PhaseComplete(log, "convert", time.Since(start)).
		Uint64("rows", rows).
		Uint64("skipped", skipped).
		Str("output", convertOutput).
		Send()
	return nil
}
