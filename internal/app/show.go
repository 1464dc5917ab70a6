package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"risk-sentinel/internal/disclosure"
	"risk-sentinel/internal/storage"
)

// ShowOptions configure the show commands.
type ShowOptions struct {
	Limit   int
	Address string
}

// ShowAlerts prints persisted alerts from the database.
func (a *App) ShowAlerts(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show alerts")
	}
	if closeStore != nil {
		defer closeStore()
	}

	var records []storageAlert
	if opts.Address != "" {
		raw, listErr := store.ListAlertsByAddress(ctx, opts.Address)
		if listErr != nil {
			return listErr
		}
		records = toStorageAlerts(raw)
	} else {
		limit := opts.Limit
		if limit <= 0 {
			limit = 20
		}
		raw, listErr := store.ListRecentAlerts(ctx, limit)
		if listErr != nil {
			return listErr
		}
		records = toStorageAlerts(raw)
	}

	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tAddress\tScore\tLevel\tConfidence\tReason\tTx")
	for _, rec := range records {
		fmt.Fprintf(writer, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.Address,
			rec.RiskScore,
			rec.RiskLevel,
			rec.Confidence,
			rec.Reason,
			rec.TxHash,
		)
	}
	writer.Flush()
	return nil
}

// ShowDisclosures prints the persisted disclosure history.
func (a *App) ShowDisclosures(ctx context.Context, opts ShowOptions) error {
	log, err := disclosure.Open(a.Config.Disclosure.Path, a.Logger)
	if err != nil {
		return err
	}
	defer log.Close()

	entries, err := log.History()
	if err != nil {
		return err
	}

	if opts.Address != "" {
		address := strings.ToLower(opts.Address)
		filtered := entries[:0]
		for _, entry := range entries {
			if strings.ToLower(entry.Address) == address {
				filtered = append(filtered, entry)
			}
		}
		entries = filtered
	}

	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[len(entries)-opts.Limit:]
	}

	if len(entries) == 0 {
		fmt.Fprintln(os.Stdout, "no disclosure entries found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tCycle\tAddress\tAction\tScore\tLevel\tTx")
	for _, entry := range entries {
		txHash := ""
		if entry.TxHash != nil {
			txHash = *entry.TxHash
		}
		fmt.Fprintf(writer, "%s\t%d\t%s\t%s\t%d\t%s\t%s\n",
			entry.Timestamp.UTC().Format(time.RFC3339),
			entry.CycleID,
			entry.Address,
			entry.Action,
			entry.RiskScore,
			entry.RiskLevel,
			txHash,
		)
	}
	writer.Flush()
	return nil
}

// storageAlert narrows storage.AlertRecord to the printed columns.
type storageAlert struct {
	CreatedAt  time.Time
	Address    string
	RiskScore  int
	RiskLevel  string
	Confidence string
	Reason     string
	TxHash     string
}

func toStorageAlerts(records []storage.AlertRecord) []storageAlert {
	out := make([]storageAlert, 0, len(records))
	for _, rec := range records {
		alert := storageAlert{
			CreatedAt:  rec.CreatedAt,
			Address:    rec.Address,
			RiskScore:  rec.RiskScore,
			RiskLevel:  rec.RiskLevel,
			Confidence: rec.Confidence,
			Reason:     rec.Reason,
		}
		if rec.TxHash != nil {
			alert.TxHash = *rec.TxHash
		}
		out = append(out, alert)
	}
	return out
}
