package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"brokerage-gateway/internal/ipo"
)

var (
	quoteIn    ipo.QuoteInput
	retailCap  float64
	policyFile string
)

var ipoCmd = &cobra.Command{
	Use:   "ipo",
	Short: "IPO bid arithmetic and eligibility checks (offline)",
}

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Price a bid: quantity, amount and the lot ceiling under the retail cap",
	RunE:  runQuote,
}

var maxLotsCmd = &cobra.Command{
	Use:   "max-lots",
	Short: "Largest number of lots that fits under the retail cap",
	RunE:  runMaxLots,
}

var checkCmd = &cobra.Command{
	Use:   "check [policy-input.json]",
	Short: "Evaluate a policy input document against the IPO eligibility policy",
	Long: `Reads a policy input document (JSON) from the file argument or stdin and prints the deny
reasons. Exits non-zero when the application would be denied.

Example:
  echo '{"lots":1,"quantity":50,"amount":5000,"rate":100,"cutoff":true,"category":"RETAIL","boid":"1","dpid":"2"}' | brokerctl ipo check`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func runQuote(cmd *cobra.Command, args []string) error {
	q := ipo.NewQuote(quoteIn, retailCap)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "quantity:  %d\n", q.Quantity)
	fmt.Fprintf(out, "price:     %.2f\n", q.Price)
	fmt.Fprintf(out, "amount:    %.2f\n", q.Amount)
	fmt.Fprintf(out, "max lots:  %d\n", q.MaxLots)
	if q.CapExceeded {
		fmt.Fprintf(out, "amount exceeds the retail cap of %.2f\n", retailCap)
	}
	return nil
}

func runMaxLots(cmd *cobra.Command, args []string) error {
	fmt.Fprintln(cmd.OutOrStdout(), ipo.MaxLots(retailCap, quoteIn.SharesPerLot, quoteIn.BidPrice))
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	var modules []string
	if policyFile != "" {
		b, err := os.ReadFile(policyFile)
		if err != nil {
			return err
		}
		modules = append(modules, string(b))
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	policy, err := ipo.NewPolicy(ctx, modules...)
	if err != nil {
		return err
	}

	in := cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	var doc ipo.PolicyInput
	if err := json.NewDecoder(in).Decode(&doc); err != nil {
		return fmt.Errorf("decode policy input: %w", err)
	}
	if doc.RetailCap == 0 {
		doc.RetailCap = retailCap
	}
	reasons, err := policy.Deny(ctx, doc)
	if err != nil {
		return err
	}
	if len(reasons) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "allowed")
		return nil
	}
	for _, r := range reasons {
		fmt.Fprintln(cmd.OutOrStdout(), "denied:", r)
	}
	return fmt.Errorf("application denied (%d rules)", len(reasons))
}
