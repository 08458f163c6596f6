package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"tronsweep/internal/storage"
)

// Export renders the sweep ledger as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Sweeper.CheckInterval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	attempts, err := store.ListAttemptsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		a.Logger.Info().Msg("no sweep attempts found for export window")
		return nil
	}

	downsampled := downsampleAttempts(attempts, opts.MaxPoints)
	a.Logger.Info().Int("total", len(attempts)).Int("exported", len(downsampled)).Msg("exporting sweep attempts")

	if opts.CSVPath != "" {
		if err := writeAttemptsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeAttemptsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleAttempts(attempts []storage.SweepAttempt, max int) []storage.SweepAttempt {
	if max <= 0 || len(attempts) <= max {
		return attempts
	}

	result := make([]storage.SweepAttempt, 0, max)
	step := float64(len(attempts)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(attempts) {
			idx = len(attempts) - 1
		}
		result = append(result, attempts[idx])
	}
	return result
}

func writeAttemptsCSV(path string, attempts []storage.SweepAttempt) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"created_at", "asset", "amount_minor", "status", "txid", "source", "destination", "error"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, attempt := range attempts {
		txid := ""
		if attempt.ChainTxID != nil {
			txid = *attempt.ChainTxID
		}
		errMsg := ""
		if attempt.ErrorReason != nil {
			errMsg = *attempt.ErrorReason
		}
		record := []string{
			attempt.CreatedAt.Format(time.RFC3339),
			attempt.AssetSymbol,
			attempt.Amount.String(),
			string(attempt.Status),
			txid,
			attempt.SourceAddress,
			attempt.DestinationAddress,
			errMsg,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeAttemptsPNG(path string, attempts []storage.SweepAttempt) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	confirmed := make([]storage.SweepAttempt, 0, len(attempts))
	for _, attempt := range attempts {
		if attempt.Status == storage.StatusConfirmed {
			confirmed = append(confirmed, attempt)
		}
	}
	if len(confirmed) < 2 {
		return errors.New("need at least two confirmed sweeps to render a chart")
	}

	x := make([]time.Time, len(confirmed))
	amounts := make([]float64, len(confirmed))
	cumulative := make([]float64, len(confirmed))

	running := decimal.Zero
	for i, attempt := range confirmed {
		x[i] = attempt.CreatedAt
		amounts[i] = attempt.Amount.InexactFloat64()
		running = running.Add(attempt.Amount)
		cumulative[i] = running.InexactFloat64()
	}

	amountFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Swept (minor units)",
			ValueFormatter: amountFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Cumulative (minor units)",
			ValueFormatter: amountFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Swept",
				XValues: x,
				YValues: amounts,
			},
			chart.TimeSeries{
				Name:    "Cumulative",
				XValues: x,
				YValues: cumulative,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
