package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"oft-bridge/pkg/ledger"
	"oft-bridge/pkg/types"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <tx-hash>",
	Short: "Check the status of a recorded transfer",
	Long: `Look up a transfer in the local history and check its receipt on the source
chain. A pending transfer whose receipt has arrived is updated to success or failed.

Examples:
  oft-bridge status 0x1234...abcd
  oft-bridge status 0x1234...abcd --watch
  oft-bridge status 0x1234...abcd --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Poll until the transfer leaves pending")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) {
	hash := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a := mustApp(cmd)
	defer a.Close()

	rec, ok := a.ledger.FindByHash(hash)
	if !ok {
		printError(fmt.Errorf("no recorded transfer with hash %s", hash))
		os.Exit(1)
	}

	if watchStatus {
		if jsonOutput {
			fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
			os.Exit(1)
		}
		watchTransferStatus(cmd.Context(), a, rec)
		return
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Checking receipt..."
		s.Start()
	}
	rec, receipt, err := reconcile(cmd.Context(), a, rec)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"record": rec, "receipt": receipt})
		return
	}
	displayStatus(rec, receipt)
}

// reconcile fetches the receipt of a pending record and stores its terminal status
func reconcile(ctx context.Context, a *app, rec ledger.Record) (ledger.Record, *types.Receipt, error) {
	if rec.Hash == "" || rec.FromChainID == 0 {
		return rec, nil, nil
	}

	receipt, err := a.router.LookupReceipt(ctx, rec.FromChainID, rec.Hash)
	if err != nil {
		return rec, nil, err
	}
	if receipt == nil || !rec.IsPending() {
		return rec, receipt, nil
	}

	status := ledger.StatusFailed
	if receipt.Succeeded() {
		status = ledger.StatusSuccess
	}
	if _, err := a.ledger.UpdateStatus(ctx, rec.Hash, status); err != nil {
		return rec, receipt, err
	}
	a.logger.Info("reconciled pending transfer", zap.String("hash", rec.Hash), zap.String("status", string(status)))
	rec.Status = status
	return rec, receipt, nil
}

func watchTransferStatus(ctx context.Context, a *app, rec ledger.Record) {
	fmt.Printf("\nWatching transfer %s\n", color.CyanString(rec.Hash))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	for {
		updated, receipt, err := reconcile(ctx, a, rec)
		if err != nil {
			color.Red("Error: %v", err)
		} else {
			rec = updated
			displayStatus(rec, receipt)
			if !rec.IsPending() {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func displayStatus(rec ledger.Record, receipt *types.Receipt) {
	fmt.Printf("\n  Status:    %s\n", colorStatus(rec.Status))
	fmt.Printf("  Amount:    %s %s\n", rec.Amount, rec.TokenSymbol)
	fmt.Printf("  Route:     %s → %s\n", rec.FromChainName, rec.ToChainName)
	fmt.Printf("  From:      %s\n", rec.From)
	fmt.Printf("  To:        %s\n", rec.To)
	fmt.Printf("  Sent:      %s\n", time.UnixMilli(rec.TimestampMs).Format(time.RFC1123))
	if receipt != nil {
		fmt.Printf("  Block:     %d (gas used %d)\n", receipt.BlockNumber, receipt.GasUsed)
	} else if rec.IsPending() {
		fmt.Printf("  Block:     %s\n", color.YellowString("not mined yet"))
	}
	if rec.CrossChainTrackingURL != "" {
		fmt.Printf("  Track:     %s\n", color.CyanString(rec.CrossChainTrackingURL))
	}
	if rec.Memo != "" {
		fmt.Printf("  Note:      %s\n", rec.Memo)
	}
	fmt.Println()
}
