// brokerctl is the operator CLI of the brokerage gateway: an offline IPO calculator and policy checker,
// and an interactive sign-in driver against a running gateway.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"brokerage-gateway/internal/ipo"
	"brokerage-gateway/internal/logging"
)

var (
	verbose bool
	timeout time.Duration
	logger  = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "brokerctl",
	Short: "Operator tools for the brokerage onboarding gateway",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !verbose {
			return nil
		}
		l, err := logging.New("development", "debug")
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Timeout for each gateway request")

	quoteCmd.Flags().IntVar(&quoteIn.Lots, "lots", 1, "Lots to bid for")
	quoteCmd.Flags().Float64Var(&quoteIn.SharesPerLot, "shares-per-lot", 0, "Shares per lot (required)")
	quoteCmd.Flags().Float64Var(&quoteIn.BidPrice, "price", 0, "Bid price")
	quoteCmd.Flags().Float64Var(&quoteIn.CutoffPrice, "cutoff-price", 0, "Issue cut-off price")
	quoteCmd.Flags().BoolVar(&quoteIn.Cutoff, "cutoff", false, "Bid at the cut-off price")
	quoteCmd.Flags().Float64Var(&retailCap, "cap", ipo.DefaultRetailCap, "Retail investment cap in rupees")
	_ = quoteCmd.MarkFlagRequired("shares-per-lot")

	maxLotsCmd.Flags().Float64Var(&quoteIn.SharesPerLot, "shares-per-lot", 0, "Shares per lot (required)")
	maxLotsCmd.Flags().Float64Var(&quoteIn.BidPrice, "price", 0, "Price per share (required)")
	maxLotsCmd.Flags().Float64Var(&retailCap, "cap", ipo.DefaultRetailCap, "Retail investment cap in rupees")
	_ = maxLotsCmd.MarkFlagRequired("shares-per-lot")
	_ = maxLotsCmd.MarkFlagRequired("price")

	checkCmd.Flags().StringVar(&policyFile, "policy", "", "Rego module to use instead of the built-in policy")
	checkCmd.Flags().Float64Var(&retailCap, "cap", ipo.DefaultRetailCap, "Retail investment cap in rupees")

	signinCmd.Flags().StringVar(&gatewayURL, "gateway", "http://localhost:8080", "Gateway base URL")
	signinCmd.Flags().StringVar(&signinDraft.PAN, "pan", "", "PAN (required)")
	signinCmd.Flags().StringVar(&signinDraft.Mobile, "mobile", "", "Registered mobile number (required)")
	_ = signinCmd.MarkFlagRequired("pan")
	_ = signinCmd.MarkFlagRequired("mobile")

	ipoCmd.AddCommand(quoteCmd, maxLotsCmd, checkCmd)
	rootCmd.AddCommand(ipoCmd, signinCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
