package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/otaviobastosmatriz/rh2026/config"
	"github.com/otaviobastosmatriz/rh2026/models"
	"github.com/otaviobastosmatriz/rh2026/store"
)

func main() {
	var name, email string

	rootCmd := &cobra.Command{
		Use:   "seed-user [slug]",
		Short: "Create or update a payer record",
		Long: `Create or update a payer record in the configured store.

An existing payer keeps its paid flag; only name and email change.
The store is selected with STORE_DRIVER exactly as the server does.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slug := strings.TrimSpace(args[0])
			if slug == "" || strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" {
				return errors.New("slug, --name and --email are required")
			}

			cfg := config.Load()
			st, err := store.Open(cfg.Store)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			ctx := context.Background()
			if err := st.SaveUser(ctx, &models.User{Slug: slug, Name: name, Email: email}); err != nil {
				return fmt.Errorf("save payer: %w", err)
			}

			u, err := st.GetUser(ctx, slug)
			if err != nil {
				return err
			}
			fmt.Printf("Saved %s (%s <%s>) paid=%t\n", u.Slug, u.Name, u.Email, u.Paid)
			return nil
		},
	}

	rootCmd.Flags().StringVarP(&name, "name", "n", "", "Payer name")
	rootCmd.Flags().StringVarP(&email, "email", "e", "", "Payer email")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
