package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/goodtune/accesstime/internal/policy"
	"github.com/goodtune/accesstime/internal/service"
	"github.com/spf13/cobra"
)

var (
	checkCaller string
	checkOwner  string
)

var checkCmd = &cobra.Command{
	Use:   "check ACTION",
	Short: "Check a policy decision",
	Long: `Check whether a caller may perform an action, using the configured policies
and the stored admin. ACTION is one of set_package, purchase, grant, start, pause.`,
	Example: `  accesstime check purchase --caller alice --owner alice
  accesstime check grant --caller admin --owner alice`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkCaller, "caller", "", "Calling principal (required)")
	checkCmd.Flags().StringVar(&checkOwner, "owner", "", "Owner the action targets")
	_ = checkCmd.MarkFlagRequired("caller")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	a, err := newApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	admin, err := a.svc.Admin(ctx)
	if err != nil && !errors.Is(err, service.ErrNotInitialized) {
		return fmt.Errorf("failed to load admin: %w", err)
	}

	in := policy.Input{
		Action: policy.Action(args[0]),
		Caller: checkCaller,
		Owner:  checkOwner,
		Admin:  admin,
	}
	allowed, err := a.authz.Allow(ctx, in)
	if err != nil {
		return err
	}

	fmt.Printf("Action: %s\n", in.Action)
	fmt.Printf("Caller: %s\n", in.Caller)
	if in.Owner != "" {
		fmt.Printf("Owner:  %s\n", in.Owner)
	}
	if in.Admin != "" {
		fmt.Printf("Admin:  %s\n", in.Admin)
	} else {
		fmt.Println("Admin:  (not initialized)")
	}
	fmt.Println()

	if allowed {
		_, _ = color.New(color.FgGreen, color.Bold).Println("ALLOW")
	} else {
		_, _ = color.New(color.FgRed, color.Bold).Println("DENY")
	}
	return nil
}
