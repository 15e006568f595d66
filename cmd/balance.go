package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"oft-bridge/pkg/balance"
	"oft-bridge/pkg/types"
)

var (
	balanceChain    string
	balanceAccount  string
	balanceContract string
	balanceAll      bool
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show token balances",
	Long: `Show your token balance on one chain or on every configured chain.

Balances are cached between runs. When a chain cannot be reached the last known
balance is shown and marked as stale.

Examples:
  oft-bridge balance
  oft-bridge balance --chain amoy
  oft-bridge balance --all
  oft-bridge balance --account 0x123... --contract 0xabc...`,
	Run: runBalance,
}

func init() {
	rootCmd.AddCommand(balanceCmd)

	balanceCmd.Flags().StringVar(&balanceChain, "chain", "", "Chain name or id (defaults to the default chain)")
	balanceCmd.Flags().StringVar(&balanceAccount, "account", "", "Account to query (defaults to your own address)")
	balanceCmd.Flags().StringVar(&balanceContract, "contract", "", "Token contract override")
	balanceCmd.Flags().BoolVar(&balanceAll, "all", false, "Query every configured chain")
}

type balanceRow struct {
	Chain types.Chain
	Entry balance.Entry
	Err   error
}

func runBalance(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a := mustApp(cmd)
	defer a.Close()

	account := balanceAccount
	if account == "" {
		account = a.sender
	}
	if account == "" {
		printError(fmt.Errorf("--account is required when no private key is configured"))
		os.Exit(1)
	}

	var chains []types.Chain
	switch {
	case balanceAll:
		chains = a.cfg.Chains
	case balanceChain != "":
		chain, err := a.cfg.ResolveChain(balanceChain)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		chains = []types.Chain{chain}
	default:
		chain, _ := a.cfg.ChainByID(a.cfg.DefaultChain)
		chains = []types.Chain{chain}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching balances..."
		s.Start()
	}

	rows := make([]balanceRow, 0, len(chains))
	for _, chain := range chains {
		entry, err := a.balances.Balance(cmd.Context(), chain.ID, account, balanceContract)
		rows = append(rows, balanceRow{Chain: chain, Entry: entry, Err: err})
	}
	if !jsonOutput {
		s.Stop()
	}

	if jsonOutput {
		out := make([]map[string]interface{}, 0, len(rows))
		for _, r := range rows {
			item := map[string]interface{}{
				"chain_id":  r.Chain.ID,
				"chain":     r.Chain.Name,
				"key":       r.Entry.Key,
				"formatted": r.Entry.Formatted,
				"is_error":  r.Entry.IsError || r.Err != nil,
			}
			if r.Entry.Raw != nil {
				item["raw"] = r.Entry.Raw.String()
			}
			if r.Err != nil {
				item["error"] = r.Err.Error()
			}
			out = append(out, item)
		}
		printJSON(out)
		return
	}

	fmt.Printf("\nBalances of %s\n\n", color.CyanString(account))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "CHAIN\tID\tBALANCE\t")
	for _, r := range rows {
		value := r.Entry.Formatted + " " + a.cfg.Token.Symbol
		switch {
		case r.Err != nil && r.Entry.HasValue():
			value = color.YellowString("%s (stale)", value)
		case r.Err != nil:
			value = color.RedString("unavailable: %v", r.Err)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t\n", r.Chain.Name, r.Chain.ID, value)
	}
	w.Flush()
	fmt.Println()
}
