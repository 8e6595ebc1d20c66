package main

import (
	"fmt"
	"os"

	"pizzeria-be/internal/config"
	"pizzeria-be/internal/product"

	"github.com/spf13/cobra"
)

func newSeedCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert the menu when the products table is empty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			menu := product.DefaultMenu()
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				if menu, err = product.ParseSeed(data); err != nil {
					return fmt.Errorf("%s: %w", file, err)
				}
			}

			conn, err := openPostgres(config.LoadConfig())
			if err != nil {
				return err
			}
			defer conn.Close()

			n, err := product.Seed(cmd.Context(), product.NewRepository(conn), menu)
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "catalog already populated")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d products\n", n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML menu to seed instead of the built-in one")
	return cmd
}
