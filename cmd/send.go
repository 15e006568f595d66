package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"oft-bridge/pkg/ledger"
	"oft-bridge/pkg/parser"
	"oft-bridge/pkg/transfer"
	"oft-bridge/pkg/types"
)

var (
	recipientAddr string
	noConfirm     bool
)

var sendCmd = &cobra.Command{
	Use:     "send <amount> <token> [from <chain>] to <chain>",
	Aliases: []string{"bridge"},
	Short:   "Send tokens to another chain",
	Long: `Bridge tokens from one chain to another.

The command validates the transfer, checks your balance, probes for the smallest
executor gas budget the destination accepts, shows the fee (including the safety
margin) and, once confirmed, submits and waits for the source chain receipt.

Every submitted transfer is recorded in the local history, whatever its outcome.

Examples:
  # Send to yourself on Amoy from the default chain
  oft-bridge send 100 OFT to amoy

  # Explicit source chain and recipient
  oft-bridge send 2.5 OFT from bsc-testnet to sepolia --recipient 0x123...

  # Skip the confirmation prompt
  oft-bridge send 100 OFT to amoy --yes`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVar(&recipientAddr, "recipient", "", "Recipient address on the destination chain (defaults to your own address)")
	sendCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
}

func runSend(cmd *cobra.Command, args []string) {
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

	if err := a.cfg.RequireSigner(); err != nil {
		printError(err)
		os.Exit(1)
	}

	intent, err := a.intent(req.Amount, req.Token, req.FromChain, req.ToChain, recipientAddr)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	ctx := cmd.Context()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching quote..."
		s.Start()
	}

	// The confirmation prompt sits between this quote and submission, so Transfer
	// quotes again right before sending.
	o := a.orchestrator()
	err = o.Validate(intent)
	if err == nil {
		err = o.Preflight(ctx, intent)
	}
	var q transfer.Quote
	if err == nil {
		q, err = o.Quote(ctx, intent)
	}
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		explainError(err)
		os.Exit(1)
	}

	if !jsonOutput {
		displayQuote(intent, q)
	}

	if !noConfirm && !jsonOutput {
		if !confirmPrompt("Proceed with transfer?") {
			fmt.Println("\nTransfer cancelled.")
			os.Exit(0)
		}
	}

	if !jsonOutput {
		s.Suffix = " Validating..."
		s.Start()
	}
	o = a.orchestrator(transfer.WithStateObserver(func(st transfer.State) {
		s.Lock()
		s.Suffix = " " + stateLabel(st)
		s.Unlock()
	}))
	res, err := o.Transfer(ctx, intent)
	if !jsonOutput {
		s.Stop()
	}

	if jsonOutput {
		output := map[string]interface{}{
			"status": "failed",
		}
		if res != nil {
			output["transfer_id"] = res.TransferID
			output["hash"] = res.Hash
			output["native_fee"] = res.Quote.NativeFee.String()
			output["gas"] = res.Quote.Gas
			output["record"] = res.Record
			output["status"] = res.Record.Status
		}
		if err != nil {
			output["error"] = err.Error()
		}
		printJSON(output)
		if err != nil {
			os.Exit(1)
		}
		return
	}

	if err != nil {
		if res != nil && res.Hash != "" {
			fmt.Printf("\n  Tx Hash:  %s\n", color.CyanString(res.Hash))
			fmt.Printf("  Track:    %s\n", res.Record.CrossChainTrackingURL)
		}
		if res == nil || res.Record.Status != ledger.StatusPending {
			explainError(err)
			os.Exit(1)
		}
		printError(err)
		fmt.Println("The transfer was broadcast and is recorded as pending. Do not resend; check it later with:")
		color.Cyan("  oft-bridge status %s\n", res.Hash)
		os.Exit(1)
	}

	color.Green("\n✓ Transfer confirmed on %s!", intent.FromChain.Name)
	fmt.Printf("  Tx Hash:  %s\n", color.CyanString(res.Hash))
	fmt.Printf("  Block:    %d\n", res.Receipt.BlockNumber)
	fmt.Printf("  Explorer: %s\n", intent.FromChain.TxURL(res.Hash))
	fmt.Printf("  Track:    %s\n", res.Record.CrossChainTrackingURL)
	fmt.Println("\nDelivery on the destination chain usually takes a few minutes.")
}

func stateLabel(st transfer.State) string {
	switch st {
	case transfer.StateValidating:
		return "Validating..."
	case transfer.StateQuoting:
		return "Re-quoting fee..."
	case transfer.StateSubmitting:
		return "Submitting transaction..."
	case transfer.StateConfirming:
		return "Waiting for receipt..."
	case transfer.StateRecorded:
		return "Recording..."
	}
	return string(st)
}

func displayQuote(intent types.TransferIntent, q transfer.Quote) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                    TRANSFER QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Amount:            %s %s\n", intent.Amount, color.YellowString(intent.Token.Symbol))
	fmt.Printf("  From:              %s (%d)\n", intent.FromChain.Name, intent.FromChain.ID)
	fmt.Printf("  To:                %s (eid %d)\n", intent.ToChain.Name, intent.ToChain.EndpointID)
	fmt.Printf("  Recipient:         %s\n", color.CyanString(intent.Recipient))
	fmt.Printf("  Executor Gas:      %d (%d probe(s))\n", q.Gas, len(q.Attempts))
	fmt.Printf("  Quoted Fee:        %s %s\n", formatNative(q.QuotedNativeFee), intent.FromChain.Symbol)
	fmt.Printf("  Fee With Margin:   %s %s\n", color.YellowString(formatNative(q.NativeFee)), intent.FromChain.Symbol)

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

// confirmPrompt asks a yes/no question on stdin, defaulting to no
func confirmPrompt(question string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("\n%s (y/N): ", question)

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

// explainError prints err with a hint for the error classes a user can act on
func explainError(err error) {
	printError(err)
	switch {
	case errors.Is(err, types.ErrNoViableRoute):
		color.Yellow("Every executor gas budget was rejected. The destination is most likely not")
		color.Yellow("configured to accept messages from this chain; retrying will not help.\n")
	case errors.Is(err, types.ErrRPCTransient):
		color.Yellow("This looks like a network problem. It is safe to try again.\n")
	}
}
