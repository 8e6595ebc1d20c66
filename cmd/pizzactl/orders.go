package main

import (
	"errors"
	"fmt"
	"io"

	"pizzeria-be/internal/config"
	"pizzeria-be/internal/order"
	"pizzeria-be/internal/stats"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

type orderStore struct {
	orders order.Repository
	stats  stats.Repository
	close  func() error
}

func openOrderStore(cfg *config.Config) (*orderStore, error) {
	if cfg.StoreDriver == config.StoreDriverFile {
		fs, err := order.OpenFileStore(cfg.StoreFile)
		if err != nil {
			return nil, err
		}
		return &orderStore{orders: fs, stats: stats.NewOrderSummarizer(fs), close: fs.Close}, nil
	}

	conn, err := openDBFunc(cfg)
	if err != nil {
		return nil, err
	}
	return &orderStore{
		orders: order.NewRepository(conn),
		stats:  stats.NewRepository(conn),
		close:  conn.Close,
	}, nil
}

func newCleanOrdersCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clean-orders",
		Short: "Delete every order, line and extra",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to delete orders without --yes")
			}

			st, err := openOrderStore(config.LoadConfig())
			if err != nil {
				return err
			}
			defer st.close()

			n, err := st.orders.ClearOrders(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d orders\n", n)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the deletion")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print today's revenue and the top three products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openOrderStore(config.LoadConfig())
			if err != nil {
				return err
			}
			defer st.close()

			summary, err := stats.NewService(st.stats).Summary(cmd.Context())
			if err != nil {
				return err
			}
			return renderSummary(cmd.OutOrStdout(), summary)
		},
	}
}

func renderSummary(w io.Writer, s *stats.Summary) error {
	fmt.Fprintf(w, "Revenue today: %.2f\n", s.RevenueToday)

	table := tablewriter.NewWriter(w)
	table.Header("Rank", "Product", "Lines")
	for i, item := range s.TopThree {
		if err := table.Append([]string{fmt.Sprint(i + 1), item.Name, fmt.Sprint(item.Count)}); err != nil {
			return err
		}
	}
	return table.Render()
}
