package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli"
)

var ordersCommand = cli.Command{
	Name:   "orders",
	Usage:  "list the open marketplace orders",
	Action: orders,
}

func orders(ctx *cli.Context) error {
	services, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	ctxb := context.Background()
	if err := services.Credentials.Bootstrap(ctxb); err != nil {
		return err
	}

	orders, err := services.Marketplace.FetchOpenOrders(ctxb)
	if err != nil {
		return err
	}

	if len(orders) == 0 {
		fmt.Println("No open orders")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSIZE\tINVOICE AMOUNT\tBUYER")
	for _, order := range orders {
		amt := "-"
		if order.SellerInvoiceAmount != nil {
			amt = order.SellerInvoiceAmount.String()
		}

		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\n", order.ID, order.Status,
			order.Size, amt, order.Account)
	}

	return w.Flush()
}
