package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/smallbiznis/facesaju/internal/coupon"
	coupondomain "github.com/smallbiznis/facesaju/internal/coupon/domain"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

type couponCreateCmd struct {
	code         string
	name         string
	serviceType  string
	discountType string
	amount       int64
	quantity     int
	expires      string
}

func newCouponCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coupon",
		Short: "Manage coupons",
	}
	cmd.AddCommand(newCouponCreateCmd(), newCouponListCmd())
	return cmd
}

func newCouponCreateCmd() *cobra.Command {
	cc := &couponCreateCmd{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a coupon",
		RunE:  cc.run,
	}

	cmd.Flags().StringVar(&cc.code, "code", "", "Coupon code")
	cmd.Flags().StringVar(&cc.name, "name", "", "Display name")
	cmd.Flags().StringVar(&cc.serviceType, "service-type", coupondomain.ServiceTypeAll, "Product line the coupon applies to")
	cmd.Flags().StringVar(&cc.discountType, "discount-type", string(coupondomain.DiscountFree), "free or fixed")
	cmd.Flags().Int64Var(&cc.amount, "amount", 0, "Discount amount in KRW for fixed coupons")
	cmd.Flags().IntVar(&cc.quantity, "quantity", 1, "Number of redemptions")
	cmd.Flags().StringVar(&cc.expires, "expires", "", "Last valid day (YYYY-MM-DD, KST)")

	_ = cmd.MarkFlagRequired("code")

	return cmd
}

func (cc *couponCreateCmd) run(cmd *cobra.Command, _ []string) error {
	req := coupondomain.CreateRequest{
		Code:           cc.code,
		Name:           cc.name,
		ServiceType:    cc.serviceType,
		DiscountKind:   coupondomain.DiscountKind(strings.ToLower(cc.discountType)),
		DiscountAmount: cc.amount,
		TotalQuantity:  cc.quantity,
	}
	if cc.expires != "" {
		day, err := time.ParseInLocation("2006-01-02", cc.expires, kst)
		if err != nil {
			return fmt.Errorf("invalid --expires %q: %w", cc.expires, err)
		}
		end := day.AddDate(0, 0, 1).Add(-time.Second)
		req.ExpiresAt = &end
	}

	var svc coupondomain.Service
	return runWith(cmd.Context(), []fx.Option{coupon.Module}, func(ctx context.Context) error {
		created, err := svc.Create(ctx, req)
		if err != nil {
			return err
		}
		if outputJSON() {
			return writeJSON(cmd.OutOrStdout(), created)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created coupon %s (%s, %d left)\n", created.Code, created.ID, created.RemainingQuantity)
		return nil
	}, &svc)
}

func newCouponListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List coupons",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var svc coupondomain.Service
			return runWith(cmd.Context(), []fx.Option{coupon.Module}, func(ctx context.Context) error {
				coupons, err := svc.List(ctx)
				if err != nil {
					return err
				}
				if outputJSON() {
					return writeJSON(cmd.OutOrStdout(), coupons)
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CODE\tSERVICE\tTYPE\tAMOUNT\tREMAINING\tACTIVE")
				for _, c := range coupons {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d/%d\t%t\n",
						c.Code, c.ServiceType, c.DiscountKind, c.DiscountAmount,
						c.RemainingQuantity, c.TotalQuantity, c.IsActive)
				}
				return tw.Flush()
			}, &svc)
		},
	}
}
