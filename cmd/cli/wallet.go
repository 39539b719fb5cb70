package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// request performs an API call and prints the JSON response.
func (c *cli) request(cmd *cobra.Command, method, path string, query url.Values, body any) error {
	key, _ := cmd.Flags().GetString("idempotency-key")
	data, err := c.client.call(cmd.Context(), method, path, query, body, key)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), data)
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("amount must be positive, got %s", raw)
	}
	return amount, nil
}

func walletPath(id string, suffix ...string) string {
	p := "/api/v1/wallets/" + url.PathEscape(id)
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}

func addIdempotencyFlag(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().String("idempotency-key", "", "Idempotency-Key header; retries with the same key replay the first response")
	return cmd
}

func (c *cli) walletCmd() *cobra.Command {
	walletCmd := &cobra.Command{
		Use:   "wallet",
		Short: "Wallet operations",
	}

	var ownerID string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a wallet for an owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.request(cmd, http.MethodPost, "/api/v1/wallets", nil, map[string]string{"owner_id": ownerID})
		},
	}
	createCmd.Flags().StringVar(&ownerID, "owner", "", "Owner ID")
	_ = createCmd.MarkFlagRequired("owner")

	getCmd := &cobra.Command{
		Use:   "get WALLET_ID",
		Short: "Show a wallet's current balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.request(cmd, http.MethodGet, walletPath(args[0]), nil, nil)
		},
	}

	byOwnerCmd := &cobra.Command{
		Use:   "by-owner OWNER_ID",
		Short: "Show the wallet that belongs to an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.request(cmd, http.MethodGet, "/api/v1/wallets/owner/"+url.PathEscape(args[0]), nil, nil)
		},
	}

	var limit, offset int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List wallets",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(limit))
			q.Set("offset", strconv.Itoa(offset))
			return c.request(cmd, http.MethodGet, "/api/v1/wallets", q, nil)
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of wallets")
	listCmd.Flags().IntVar(&offset, "offset", 0, "Number of wallets to skip")

	movement := func(use, short, suffix string) *cobra.Command {
		return addIdempotencyFlag(&cobra.Command{
			Use:   use + " WALLET_ID AMOUNT",
			Short: short,
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				amount, err := parseAmount(args[1])
				if err != nil {
					return err
				}
				return c.request(cmd, http.MethodPost, walletPath(args[0], suffix), nil, map[string]string{"amount": amount.String()})
			},
		})
	}

	var at string
	historyCmd := &cobra.Command{
		Use:   "history WALLET_ID",
		Short: "Show a wallet's balance as of a point in time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := time.Parse(time.RFC3339Nano, at)
			if err != nil {
				return fmt.Errorf("invalid --at %q: expected RFC 3339", at)
			}
			q := url.Values{}
			q.Set("at", ts.UTC().Format(time.RFC3339Nano))
			return c.request(cmd, http.MethodGet, walletPath(args[0], "history"), q, nil)
		},
	}
	historyCmd.Flags().StringVar(&at, "at", "", "Point in time, RFC 3339")
	_ = historyCmd.MarkFlagRequired("at")

	eventsCmd := &cobra.Command{
		Use:   "events WALLET_ID",
		Short: "List every event recorded for a wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.request(cmd, http.MethodGet, walletPath(args[0], "events"), nil, nil)
		},
	}

	walletCmd.AddCommand(
		addIdempotencyFlag(createCmd),
		getCmd,
		byOwnerCmd,
		listCmd,
		movement("deposit", "Deposit money into a wallet", "deposit"),
		movement("withdraw", "Withdraw money from a wallet", "withdraw"),
		historyCmd,
		eventsCmd,
	)
	return walletCmd
}

func (c *cli) transferCmd() *cobra.Command {
	return addIdempotencyFlag(&cobra.Command{
		Use:   "transfer FROM_WALLET_ID TO_WALLET_ID AMOUNT",
		Short: "Move money between two wallets",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}
			return c.request(cmd, http.MethodPost, "/api/v1/transfers", nil, map[string]string{
				"from_wallet_id": args[0],
				"to_wallet_id":   args[1],
				"amount":         amount.String(),
			})
		},
	})
}

func (c *cli) reconcileCmd() *cobra.Command {
	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Ledger consistency checks",
	}

	var since string
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Check every wallet and list unmatched transfer legs",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if since != "" {
				ts, err := time.Parse(time.RFC3339Nano, since)
				if err != nil {
					return fmt.Errorf("invalid --since %q: expected RFC 3339", since)
				}
				q.Set("since", ts.UTC().Format(time.RFC3339Nano))
			}
			return c.request(cmd, http.MethodGet, "/api/v1/reconciliation/report", q, nil)
		},
	}
	reportCmd.Flags().StringVar(&since, "since", "", "Only consider transfer legs after this time, RFC 3339")

	walletCmd := &cobra.Command{
		Use:   "wallet WALLET_ID",
		Short: "Compare a wallet's projection with its event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.request(cmd, http.MethodGet, "/api/v1/reconciliation/wallets/"+url.PathEscape(args[0]), nil, nil)
		},
	}

	rebuildCmd := &cobra.Command{
		Use:   "rebuild WALLET_ID",
		Short: "Rebuild a wallet's projection from its event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.request(cmd, http.MethodPost, "/api/v1/reconciliation/wallets/"+url.PathEscape(args[0])+"/rebuild", nil, nil)
		},
	}

	reconcileCmd.AddCommand(reportCmd, walletCmd, rebuildCmd)
	return reconcileCmd
}
