package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"oft-bridge/pkg/parser"
)

var quoteRecipient string

var quoteCmd = &cobra.Command{
	Use:   "quote <amount> <token> [from <chain>] to <chain>",
	Short: "Quote the messaging fee of a transfer without sending",
	Long: `Probe the executor gas ladder and show the fee a transfer would cost.

With --verbose every probe attempt is listed with its outcome.

Examples:
  oft-bridge quote 100 OFT to amoy
  oft-bridge quote 100 OFT from amoy to sepolia --verbose
  oft-bridge quote 100 OFT to amoy --json`,
	Args: cobra.MinimumNArgs(1),
	Run:  runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().StringVar(&quoteRecipient, "recipient", "", "Recipient address (defaults to your own address)")
}

func runQuote(cmd *cobra.Command, args []string) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	req, err := parser.ParseSendCommand(strings.Join(args, " "))
	if err == nil {
		err = parser.ValidateSendRequest(req)
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	a := mustApp(cmd)
	defer a.Close()

	recipient := quoteRecipient
	if recipient == "" && a.sender == "" {
		printError(fmt.Errorf("--recipient is required when no private key is configured"))
		os.Exit(1)
	}

	intent, err := a.intent(req.Amount, req.Token, req.FromChain, req.ToChain, recipient)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Probing executor gas options..."
		s.Start()
	}

	q, err := a.orchestrator().Quote(cmd.Context(), intent)
	if !jsonOutput {
		s.Stop()
	}

	if verbose && !jsonOutput {
		fmt.Println("\nProbe attempts:")
		for _, at := range q.Attempts {
			if at.Success {
				fmt.Printf("  %s gas %-10d fee %s (%s)\n", color.GreenString("✓"), at.Gas, at.Fee, at.Elapsed.Round(time.Millisecond))
				continue
			}
			fmt.Printf("  %s gas %-10d %v\n", color.RedString("✗"), at.Gas, at.Err)
		}
	}

	if err != nil {
		if jsonOutput {
			printJSON(map[string]interface{}{"error": err.Error(), "attempts": len(q.Attempts)})
			os.Exit(1)
		}
		explainError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"from_chain_id":  intent.FromChain.ID,
			"to_eid":         intent.ToChain.EndpointID,
			"amount":         intent.Amount,
			"gas":            q.Gas,
			"options":        fmt.Sprintf("0x%x", q.GasOption),
			"quoted_fee":     q.QuotedNativeFee.String(),
			"native_fee":     q.NativeFee.String(),
			"native_symbol":  intent.FromChain.Symbol,
			"lz_token_fee":   q.ProtocolTokenFee.String(),
			"attempts":       len(q.Attempts),
			"quoted_at":      q.QuotedAt,
			"margin_percent": a.cfg.SafetyMarginPercent,
		})
		return
	}

	displayQuote(intent, q)
}

// formatNative renders a wei amount in whole native units
func formatNative(wei interface{ String() string }) string {
	d, err := decimal.NewFromString(wei.String())
	if err != nil {
		return wei.String()
	}
	return d.Shift(-18).String()
}
