package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"oft-bridge/config"
)

var chainsCmd = &cobra.Command{
	Use:     "chains",
	Aliases: []string{"list-chains", "ls"},
	Short:   "List configured chains and token deployments",
	Long: `List every configured chain with its chain id, protocol endpoint id and the
token contract deployed there.

Examples:
  oft-bridge chains
  oft-bridge chains --json`,
	Run: runChains,
}

func init() {
	rootCmd.AddCommand(chainsCmd)
}

func runChains(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	cfg := loadConfig()

	if jsonOutput {
		out := make([]map[string]interface{}, 0, len(cfg.Chains))
		for _, c := range cfg.Chains {
			contract, _ := cfg.Token.AddressOn(c.ID)
			out = append(out, map[string]interface{}{
				"id":       c.ID,
				"eid":      c.EndpointID,
				"name":     c.Name,
				"symbol":   c.Symbol,
				"explorer": c.ExplorerURL,
				"contract": contract,
				"default":  c.ID == cfg.DefaultChain,
			})
		}
		printJSON(out)
		return
	}

	displayChains(cfg)
}

func displayChains(cfg *config.Config) {
	fmt.Printf("\n%s (%d decimals)\n\n", color.YellowString(cfg.Token.Symbol), cfg.Token.Decimals)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCHAIN ID\tEID\tNATIVE\tCONTRACT\t")
	for _, c := range cfg.Chains {
		name := c.Name
		if c.ID == cfg.DefaultChain {
			name += " *"
		}
		contract, ok := cfg.Token.AddressOn(c.ID)
		if !ok {
			contract = color.RedString("not deployed")
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t\n", name, c.ID, c.EndpointID, c.Symbol, contract)
	}
	w.Flush()
	fmt.Println("\n* default source chain")
	fmt.Println()
}
