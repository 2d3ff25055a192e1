package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/otaviobastosmatriz/rh2026/checkout"
)

var Version = "dev"

type options struct {
	api     string
	slug    string
	name    string
	email   string
	timeout time.Duration
}

func main() {
	var opts options

	rootCmd := &cobra.Command{
		Use:     "checkout",
		Short:   "Pay the registration fee for a payer with Pix",
		Version: Version,
		Long: `Issue a Pix charge for a payer and wait for confirmation.

Commands read from stdin:
  check   ask whether the payment was confirmed
  new     issue a fresh charge and restart the countdown
  quit    leave`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	rootCmd.Flags().StringVar(&opts.api, "api", "http://localhost:8081", "Payments API base URL")
	rootCmd.Flags().StringVar(&opts.slug, "slug", "", "Payer slug")
	rootCmd.Flags().StringVar(&opts.name, "name", "", "Payer name (looked up when empty)")
	rootCmd.Flags().StringVar(&opts.email, "email", "", "Payer email (looked up when empty)")
	rootCmd.Flags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "Request timeout")
	_ = rootCmd.MarkFlagRequired("slug")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	client := checkout.NewClient(opts.api, opts.timeout)

	payer := checkout.Payer{Slug: opts.slug, Name: opts.name, Email: opts.email}
	if payer.Name == "" || payer.Email == "" {
		view, err := client.Payer(ctx, opts.slug)
		if err != nil {
			return fmt.Errorf("look up payer: %w", err)
		}
		if view.Paid {
			fmt.Printf("%s has already paid.\n", view.Name)
			return nil
		}
		payer.Name, payer.Email = view.Name, view.Email
	}

	done := make(chan struct{})
	session := checkout.NewSession(client, client, payer,
		checkout.OnConfirmed(func() { close(done) }),
		checkout.OnExpired(func() {
			fmt.Println("\nThe code has expired. Type \"new\" for a fresh one.")
		}),
	)
	defer session.Close()

	if err := generate(ctx, session); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
		close(lines)
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			fmt.Println("Payment confirmed. Thank you!")
			if view, err := client.Payer(ctx, payer.Slug); err == nil {
				fmt.Printf("%s <%s> paid=%t\n", view.Name, view.Email, view.Paid)
			}
			return nil
		case <-ticker.C:
			if session.State() == checkout.Ready {
				fmt.Printf("Expires in %s\n", checkout.FormatCountdown(session.Remaining()))
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch line {
			case "check", "c":
				paid, err := session.Check(ctx)
				switch {
				case err != nil:
					fmt.Printf("Could not check the payment: %v\n", err)
				case !paid:
					fmt.Println("Payment not confirmed yet.")
				}
			case "new", "n":
				if err := generate(ctx, session); err != nil {
					fmt.Printf("Could not generate a new code: %v\n", err)
				}
			case "quit", "q":
				return nil
			case "":
			default:
				fmt.Println("Commands: check, new, quit")
			}
		}
	}
}

func generate(ctx context.Context, session *checkout.Session) error {
	charge, err := session.Generate(ctx)
	if err != nil {
		var apiErr *checkout.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("generate charge: %s", apiErr.Message)
		}
		return fmt.Errorf("generate charge: %w", err)
	}

	fmt.Println()
	fmt.Printf("Amount:     %s\n", charge.DisplayAmount)
	fmt.Printf("Pix code:   %s\n", charge.Code)
	fmt.Printf("QR image:   %s\n", charge.QRImageRef)
	fmt.Printf("Expires in: %s\n", checkout.FormatCountdown(session.Remaining()))
	fmt.Println("Pay in your bank app, then type \"check\".")
	return nil
}
