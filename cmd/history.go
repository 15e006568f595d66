package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"oft-bridge/pkg/ledger"
)

var (
	historyType    string
	historyWallet  string
	historyChain   string
	historyPending bool
	historyLimit   int
	historyYes     bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded transfers",
	Long: `List the local transfer history, most recent first. At most the last 100
transfers are kept.

Examples:
  oft-bridge history
  oft-bridge history --pending
  oft-bridge history --type bridge --chain amoy
  oft-bridge history --wallet 0x123... --json`,
	Run: runHistory,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the whole transfer history",
	Long: `Permanently remove every recorded transfer.

Examples:
  oft-bridge history clear --yes`,
	Run: runHistoryClear,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyClearCmd)

	historyCmd.Flags().StringVar(&historyType, "type", "", "Filter by kind (transfer, bridge)")
	historyCmd.Flags().StringVar(&historyWallet, "wallet", "", "Filter by sender or recipient address")
	historyCmd.Flags().StringVar(&historyChain, "chain", "", "Filter by source or destination chain")
	historyCmd.Flags().BoolVar(&historyPending, "pending", false, "Only show pending transfers")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of records to show (0 for all)")

	historyClearCmd.Flags().BoolVarP(&historyYes, "yes", "y", false, "Skip confirmation prompt")
}

func runHistory(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a := mustApp(cmd)
	defer a.Close()

	filters := []func(*ledger.Record) bool{}
	records := a.ledger.GetAll()

	if historyType != "" {
		kind := ledger.Kind(strings.ToLower(historyType))
		if kind != ledger.KindTransfer && kind != ledger.KindBridge {
			printError(fmt.Errorf("unknown type %q, expected transfer or bridge", historyType))
			os.Exit(1)
		}
		if historyPending {
			records = a.ledger.GetPendingByType(kind)
		} else {
			records = a.ledger.GetByType(kind)
		}
	} else if historyPending {
		records = a.ledger.GetPending()
	}
	if historyWallet != "" {
		filters = append(filters, func(r *ledger.Record) bool { return r.Involves(historyWallet) })
	}
	if historyChain != "" {
		chain, err := a.cfg.ResolveChain(historyChain)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		filters = append(filters, func(r *ledger.Record) bool { return r.OnChain(chain.ID) })
	}

	filtered := make([]ledger.Record, 0, len(records))
outer:
	for i := range records {
		for _, keep := range filters {
			if !keep(&records[i]) {
				continue outer
			}
		}
		filtered = append(filtered, records[i])
	}
	if historyLimit > 0 && len(filtered) > historyLimit {
		filtered = filtered[:historyLimit]
	}

	if jsonOutput {
		printJSON(filtered)
		return
	}

	if len(filtered) == 0 {
		fmt.Println("\nNo transfers recorded.")
		return
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tKIND\tAMOUNT\tROUTE\tSTATUS\tHASH\t")
	for _, r := range filtered {
		route := r.FromChainName
		if r.ToChainName != "" {
			route += " → " + r.ToChainName
		}
		fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\t%s\t%s\t\n",
			time.UnixMilli(r.TimestampMs).Format("2006-01-02 15:04"),
			r.Kind,
			r.Amount, r.TokenSymbol,
			route,
			colorStatus(r.Status),
			shortHash(r.Hash))
	}
	w.Flush()
	fmt.Printf("\nShowing %d of %d recorded transfer(s).\n\n", len(filtered), a.ledger.Len())
}

func runHistoryClear(cmd *cobra.Command, args []string) {
	a := mustApp(cmd)
	defer a.Close()

	if !historyYes {
		fmt.Printf("\nThis deletes all %d recorded transfer(s).", a.ledger.Len())
		if !confirmPrompt("Clear history?") {
			fmt.Println("\nCancelled.")
			return
		}
	}

	if err := a.ledger.ClearAll(cmd.Context()); err != nil {
		printError(err)
		os.Exit(1)
	}
	color.Green("\n✓ History cleared\n")
}

func colorStatus(s ledger.Status) string {
	switch s {
	case ledger.StatusSuccess:
		return color.GreenString(string(s))
	case ledger.StatusFailed:
		return color.RedString(string(s))
	default:
		return color.YellowString(string(s))
	}
}

func shortHash(hash string) string {
	if hash == "" {
		return "-"
	}
	if len(hash) <= 14 {
		return hash
	}
	return hash[:8] + "…" + hash[len(hash)-6:]
}
