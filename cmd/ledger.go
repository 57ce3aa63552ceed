package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dronesim/dronesim/sim"
	"github.com/dronesim/dronesim/sim/ledger"
)

var (
	// CLI flags shared by the ledger subcommands
	ledgerFile   string // Ledger location
	ledgerKind   string // csv or sqlite
	injectID     string // Request id; generated when empty
	injectType   string // Supply type
	injectOrigin string // Origin hospital id
	injectDest   string // Destination hospital id
	showAll      bool   // Print completed rows as well as active ones
)

// ledgerCmd groups commands that work on a request ledger directly, typically
// while a simulation is reading it.
var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect or feed a request ledger",
}

var ledgerInjectCmd = &cobra.Command{
	Use:   "inject",
	Short: "Append an Active delivery request for a running simulation to pick up",
	Run: func(cmd *cobra.Command, args []string) {
		rec, err := newInjectedRecord(injectID, injectType, injectOrigin, injectDest, time.Now())
		if err != nil {
			logrus.Fatalf("Invalid request: %v", err)
		}
		store, err := ledger.Open(ledgerKind, ledgerFile)
		if err != nil {
			logrus.Fatalf("Failed to open ledger: %v", err)
		}
		defer store.Close()
		if err := store.Append(rec); err != nil {
			logrus.Fatalf("Failed to append to ledger: %v", err)
		}
		fmt.Fprintf(os.Stdout, "Injected %s: %s -> %s (%s)\n", rec.ID, rec.Origin, rec.Destination, rec.Type)
	},
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current state of every request in a ledger",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := ledger.Open(ledgerKind, ledgerFile)
		if err != nil {
			logrus.Fatalf("Failed to open ledger: %v", err)
		}
		defer store.Close()
		records, problems, err := store.Load()
		if err != nil {
			logrus.Fatalf("Failed to read ledger: %v", err)
		}
		for _, p := range problems {
			logrus.Warnf("%v", p)
		}
		writeLedgerReport(os.Stdout, records, showAll)
	},
}

// newInjectedRecord validates an externally supplied request and builds its
// Active ledger row. An empty id gets a random one.
func newInjectedRecord(id, typ, origin, dest string, now time.Time) (ledger.Record, error) {
	if !sim.IsValidSupplyType(typ) {
		return ledger.Record{}, fmt.Errorf("unknown supply type %q", typ)
	}
	if origin == "" || dest == "" {
		return ledger.Record{}, errors.New("origin and destination are required")
	}
	if origin == dest {
		return ledger.Record{}, fmt.Errorf("origin and destination are both %s", origin)
	}
	if id == "" {
		id = uuid.NewString()
	}
	return ledger.Record{
		ID:          id,
		Timestamp:   now,
		Type:        typ,
		Origin:      origin,
		Destination: dest,
		Status:      ledger.StatusActive,
	}, nil
}

// writeLedgerReport prints the folded ledger, then per-status and per-type
// counts. Completed rows are listed only when all is set.
func writeLedgerReport(w io.Writer, records []ledger.Record, all bool) {
	fmt.Fprintf(w, "%-36s  %-9s  %-9s  %-6s  %-6s  %s\n", "ID", "Status", "Type", "From", "To", "Updated")
	for _, r := range ledger.Fold(records) {
		if r.Status != ledger.StatusActive && !all {
			continue
		}
		fmt.Fprintf(w, "%-36s  %-9s  %-9s  %-6s  %-6s  %s\n",
			r.ID, r.Status, r.Type, r.Origin, r.Destination, humanize.Time(r.Timestamp))
	}

	summary := ledger.Summarize(records)
	fmt.Fprintf(w, "\n%s requests (%s rows): %s active, %s completed\n",
		humanize.Comma(int64(summary.Total)), humanize.Comma(int64(len(records))),
		humanize.Comma(int64(summary.ByStatus[ledger.StatusActive])),
		humanize.Comma(int64(summary.ByStatus[ledger.StatusCompleted])))
	for _, spec := range sim.Catalog {
		if n := summary.ByType[string(spec.Type)]; n > 0 {
			fmt.Fprintf(w, "  %-10s %s\n", spec.Type, humanize.Comma(int64(n)))
		}
	}
	for _, origin := range sortedKeys(summary.ByOrigin) {
		fmt.Fprintf(w, "  active from %-6s %s\n", origin, humanize.Comma(int64(summary.ByOrigin[origin])))
	}
}

func init() {
	ledgerCmd.PersistentFlags().StringVar(&ledgerFile, "path", "simulation_alerts.csv", "Ledger location")
	ledgerCmd.PersistentFlags().StringVar(&ledgerKind, "backend", "csv", "Ledger backend (csv, sqlite)")

	ledgerInjectCmd.Flags().StringVar(&injectID, "id", "", "Request id (random when empty)")
	ledgerInjectCmd.Flags().StringVar(&injectType, "type", "", "Supply type (Medical, Blood, Equipment, Supplies)")
	ledgerInjectCmd.Flags().StringVar(&injectOrigin, "origin", "", "Origin hospital id, e.g. H1")
	ledgerInjectCmd.Flags().StringVar(&injectDest, "destination", "", "Destination hospital id, e.g. H2")
	_ = ledgerInjectCmd.MarkFlagRequired("type")
	_ = ledgerInjectCmd.MarkFlagRequired("origin")
	_ = ledgerInjectCmd.MarkFlagRequired("destination")

	ledgerShowCmd.Flags().BoolVar(&showAll, "all", false, "Include completed requests")

	ledgerCmd.AddCommand(ledgerInjectCmd)
	ledgerCmd.AddCommand(ledgerShowCmd)
}
