package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/artisan-market/api/internal/di"
)

func newOrdersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect and process active orders",
	}
	cmd.AddCommand(newOrdersListCmd(a))
	cmd.AddCommand(newOrdersProcessCmd(a))
	return cmd
}

func newOrdersListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List orders awaiting processing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withRuntime(cmd.Context(), func(rt *di.Runtime) error {
				orders, err := rt.Container.Services.Query.ListActiveOrders(cmd.Context())
				if err != nil {
					return fmt.Errorf("listing orders: %w", err)
				}
				rows := make([][]string, 0, len(orders))
				for _, o := range orders {
					rows = append(rows, []string{
						o.ID,
						o.CustomerEmail,
						o.ProductName,
						strconv.Itoa(o.Quantity),
						formatRupees(o.ItemTotal),
						o.CreatedAt.UTC().Format(time.DateTime),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"ORDER", "CUSTOMER", "PRODUCT", "QTY", "TOTAL", "PLACED"}, rows))
				return nil
			})
		},
	}
}

func newOrdersProcessCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "process <order-id>",
		Short: "Notify the customer and archive an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd.Context(), func(rt *di.Runtime) error {
				record, err := rt.Container.Services.Processor.ProcessOrder(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("processing %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s into %s\n", okStyle.Render("processed"), record.OrderID(), record.Month)
				return nil
			})
		},
	}
}
