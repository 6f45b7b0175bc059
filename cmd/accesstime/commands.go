package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/goodtune/accesstime/internal/auth"
	"github.com/spf13/cobra"
)

// action runs fn against a freshly built app and prints its result as JSON.
// The --as principal, when given, is attached to the context.
func action(fn func(ctx context.Context, a *app, args []string) (interface{}, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		if principal != "" {
			ctx = auth.WithPrincipal(ctx, principal)
		}

		result, err := fn(ctx, a, args)
		if err != nil {
			return err
		}
		if result == nil {
			return nil
		}
		return printJSON(result)
	}
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = fmt.Fprintln(os.Stdout, string(out))
	return err
}

func parseUint32(name, s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return uint32(v), nil
}

func parseUint64(name, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return v, nil
}

var initCmd = &cobra.Command{
	Use:     "init ADMIN TOKEN",
	Short:   "Initialize the system with an admin and a payment token",
	Example: `  accesstime init --as admin admin tokens`,
	Args:    cobra.ExactArgs(2),
	RunE: action(func(ctx context.Context, a *app, args []string) (interface{}, error) {
		if err := a.svc.Init(ctx, args[0], args[1]); err != nil {
			return nil, err
		}
		return a.svc.Settings(ctx)
	}),
}

var packageCmd = &cobra.Command{
	Use:   "package",
	Short: "Manage the package catalog",
}

var packageSetCmd = &cobra.Command{
	Use:     "set ID PRICE DURATION_SECS",
	Short:   "Create or replace a package",
	Example: `  accesstime package set --as admin 1 10 3600`,
	Args:    cobra.ExactArgs(3),
	RunE: action(func(ctx context.Context, a *app, args []string) (interface{}, error) {
		id, err := parseUint32("package id", args[0])
		if err != nil {
			return nil, err
		}
		price, err := parseUint64("price", args[1])
		if err != nil {
			return nil, err
		}
		duration, err := parseUint64("duration", args[2])
		if err != nil {
			return nil, err
		}
		if err := a.svc.SetPackage(ctx, id, price, duration); err != nil {
			return nil, err
		}
		return a.svc.GetPackage(ctx, id)
	}),
}

var packageGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show a package",
	Args:  cobra.ExactArgs(1),
	RunE: action(func(ctx context.Context, a *app, args []string) (interface{}, error) {
		id, err := parseUint32("package id", args[0])
		if err != nil {
			return nil, err
		}
		return a.svc.GetPackage(ctx, id)
	}),
}

var packageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all packages",
	Args:  cobra.NoArgs,
	RunE: action(func(ctx context.Context, a *app, args []string) (interface{}, error) {
		return a.svc.ListPackages(ctx)
	}),
}

var purchaseCmd = &cobra.Command{
	Use:     "purchase OWNER PACKAGE_ID",
	Short:   "Pay for a package and record an order",
	Example: `  accesstime purchase --as alice alice 1`,
	Args:    cobra.ExactArgs(2),
	RunE: action(func(ctx context.Context, a *app, args []string) (interface{}, error) {
		id, err := parseUint32("package id", args[1])
		if err != nil {
			return nil, err
		}
		orderID, err := a.svc.Purchase(ctx, args[0], id)
		if err != nil {
			return nil, err
		}
		return a.svc.GetOrder(ctx, args[0], orderID)
	}),
}

var grantCmd = &cobra.Command{
	Use:     "grant OWNER ORDER_ID",
	Short:   "Credit an order's duration to the owner's session",
	Example: `  accesstime grant --as alice alice 1`,
	Args:    cobra.ExactArgs(2),
	RunE: action(func(ctx context.Context, a *app, args []string) (interface{}, error) {
		orderID, err := parseUint64("order id", args[1])
		if err != nil {
			return nil, err
		}
		remaining, err := a.svc.Grant(ctx, principal, args[0], orderID)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"owner":          args[0],
			"order_id":       orderID,
			"remaining_secs": remaining,
		}, nil
	}),
}

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Inspect purchase orders",
}

var orderGetCmd = &cobra.Command{
	Use:   "get OWNER ORDER_ID",
	Short: "Show an order",
	Args:  cobra.ExactArgs(2),
	RunE: action(func(ctx context.Context, a *app, args []string) (interface{}, error) {
		orderID, err := parseUint64("order id", args[1])
		if err != nil {
			return nil, err
		}
		return a.svc.GetOrder(ctx, args[0], orderID)
	}),
}

var orderListCmd = &cobra.Command{
	Use:   "list OWNER",
	Short: "List an owner's orders",
	Args:  cobra.ExactArgs(1),
	RunE: action(func(ctx context.Context, a *app, args []string) (interface{}, error) {
		return a.svc.ListOrders(ctx, args[0])
	}),
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Start, pause or inspect an owner's session",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start OWNER",
	Short: "Start consuming the owner's remaining time",
	Args:  cobra.ExactArgs(1),
	RunE: action(func(ctx context.Context, a *app, args []string) (interface{}, error) {
		session, transition, err := a.svc.Start(ctx, args[0])
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"session": session, "transition": transition.String()}, nil
	}),
}

var sessionPauseCmd = &cobra.Command{
	Use:   "pause OWNER",
	Short: "Stop consuming the owner's remaining time",
	Args:  cobra.ExactArgs(1),
	RunE: action(func(ctx context.Context, a *app, args []string) (interface{}, error) {
		session, transition, err := a.svc.Pause(ctx, args[0])
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"session": session, "transition": transition.String()}, nil
	}),
}

var sessionShowCmd = &cobra.Command{
	Use:   "show OWNER",
	Short: "Show the owner's session, remaining time and access",
	Args:  cobra.ExactArgs(1),
	RunE: action(func(ctx context.Context, a *app, args []string) (interface{}, error) {
		owner := args[0]
		session, err := a.svc.Session(ctx, owner)
		if err != nil {
			return nil, err
		}
		now := a.svc.Now()
		remaining, err := a.svc.Remaining(ctx, owner, now)
		if err != nil {
			return nil, err
		}
		access, err := a.svc.Access(ctx, owner)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"session":        session,
			"now":            now,
			"remaining_secs": remaining,
			"active":         remaining > 0,
			"expires_at":     access.ExpiresAt,
		}, nil
	}),
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and fund token balances",
}

var ledgerBalanceCmd = &cobra.Command{
	Use:   "balance ACCOUNT",
	Short: "Show an account's token balance",
	Args:  cobra.ExactArgs(1),
	RunE: action(func(ctx context.Context, a *app, args []string) (interface{}, error) {
		balance, err := a.ledger.Balance(ctx, args[0])
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"account": args[0], "balance": balance}, nil
	}),
}

var ledgerMintCmd = &cobra.Command{
	Use:   "mint ACCOUNT AMOUNT",
	Short: "Credit tokens to an account",
	Long:  `Credit tokens to an account. Only meaningful with the redis ledger; the memory ledger does not outlive the command.`,
	Args:  cobra.ExactArgs(2),
	RunE: action(func(ctx context.Context, a *app, args []string) (interface{}, error) {
		amount, err := parseUint64("amount", args[1])
		if err != nil {
			return nil, err
		}
		if err := a.ledger.Mint(ctx, args[0], amount); err != nil {
			return nil, err
		}
		balance, err := a.ledger.Balance(ctx, args[0])
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"account": args[0], "balance": balance}, nil
	}),
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Issue API bearer tokens",
}

var authSignCmd = &cobra.Command{
	Use:     "sign PRINCIPAL",
	Short:   "Sign a bearer token for PRINCIPAL",
	Example: `  curl -H "Authorization: Bearer $(accesstime auth sign alice)" ...`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.close()

		tok, err := a.auth.GenerateToken(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, tok)
		return nil
	},
}

func init() {
	packageCmd.AddCommand(packageSetCmd, packageGetCmd, packageListCmd)
	orderCmd.AddCommand(orderGetCmd, orderListCmd)
	sessionCmd.AddCommand(sessionStartCmd, sessionPauseCmd, sessionShowCmd)
	ledgerCmd.AddCommand(ledgerBalanceCmd, ledgerMintCmd)
	authCmd.AddCommand(authSignCmd)

	rootCmd.AddCommand(initCmd, packageCmd, purchaseCmd, grantCmd, orderCmd, sessionCmd, ledgerCmd, authCmd)
}
