package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// History prints recent sweep attempts.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	attempts, err := store.ListRecentAttempts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	total, err := store.CountAttempts(ctx)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		fmt.Fprintln(os.Stdout, "no sweep attempts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tAsset\tAmount\tStatus\tTxID\tError")

	for _, attempt := range attempts {
		txid := ""
		if attempt.ChainTxID != nil {
			txid = *attempt.ChainTxID
		}
		errMsg := ""
		if attempt.ErrorReason != nil {
			errMsg = sanitizeInline(*attempt.ErrorReason)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			attempt.CreatedAt.UTC().Format(time.RFC3339),
			attempt.AssetSymbol,
			attempt.Amount.String(),
			attempt.Status,
			txid,
			errMsg,
		)
	}

	writer.Flush()
	fmt.Fprintf(os.Stdout, "showing %d of %d attempts\n", len(attempts), total)
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
