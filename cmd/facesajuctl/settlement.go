package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/smallbiznis/facesaju/internal/attribution"
	attributiondomain "github.com/smallbiznis/facesaju/internal/attribution/domain"
	"github.com/smallbiznis/facesaju/internal/record/remotestore"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var kst = time.FixedZone("KST", 9*60*60)

func newSettlementCmd() *cobra.Command {
	now := time.Now().In(kst)
	var year, month int

	cmd := &cobra.Command{
		Use:   "settlement",
		Short: "Print the monthly influencer settlement",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var svc attributiondomain.Service
			modules := []fx.Option{remotestore.Module, attribution.Module}
			return runWith(cmd.Context(), modules, func(ctx context.Context) error {
				settlement, err := svc.MonthlySettlement(ctx, year, month)
				if err != nil {
					return err
				}
				if outputJSON() {
					return writeJSON(cmd.OutOrStdout(), settlement)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "settlement %04d-%02d\n", settlement.Year, settlement.Month)
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "INFLUENCER\tSLUG\tVISITS\tPAYMENTS\tREVENUE\tRS%\tSETTLEMENT")
				for _, row := range settlement.Rows {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%.1f\t%d\n",
						row.InfluencerName, row.Slug, row.VisitCount, row.PaymentCount,
						row.TotalRevenue, row.RSPercentage, row.SettlementAmount)
				}
				return tw.Flush()
			}, &svc)
		},
	}

	cmd.Flags().IntVar(&year, "year", now.Year(), "Settlement year")
	cmd.Flags().IntVar(&month, "month", int(now.Month()), "Settlement month (1-12)")

	return cmd
}
