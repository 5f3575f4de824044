package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ebogdum/davgate/accounts"
	"github.com/ebogdum/davgate/auth"
	"github.com/ebogdum/davgate/config"
)

// passwordEnv supplies the password when --password is not given.
const passwordEnv = "DAVGATE_ACCOUNT_PASSWORD"

var errNoPassword = errors.New("password required: use --password or " + passwordEnv)

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage local accounts of the localfs backend",
	}

	var password, home string
	var disabled bool

	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(ctx context.Context, store accounts.Store, cmd *cobra.Command, args []string) error {
			pw, err := resolvePassword(password)
			if err != nil {
				return err
			}
			return addAccount(ctx, store, cmd.OutOrStdout(), args[0], pw, home, disabled)
		}),
	}
	add.Flags().StringVar(&password, "password", "", "Account password (default $"+passwordEnv+")")
	add.Flags().StringVar(&home, "home", "", "Home directory below the localfs root (default: username)")
	add.Flags().BoolVar(&disabled, "disabled", false, "Create the account disabled")

	passwd := &cobra.Command{
		Use:   "passwd <username>",
		Short: "Change an account password",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(ctx context.Context, store accounts.Store, cmd *cobra.Command, args []string) error {
			pw, err := resolvePassword(password)
			if err != nil {
				return err
			}
			return changePassword(ctx, store, cmd.OutOrStdout(), args[0], pw)
		}),
	}
	passwd.Flags().StringVar(&password, "password", "", "New password (default $"+passwordEnv+")")

	del := &cobra.Command{
		Use:   "delete <username>",
		Short: "Delete an account; its files are kept",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(ctx context.Context, store accounts.Store, cmd *cobra.Command, args []string) error {
			username := auth.NormalizeUsername(args[0])
			if err := store.Delete(ctx, username); err != nil {
				return fmt.Errorf("failed to delete %s: %w", username, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %s deleted\n", username)
			return nil
		}),
	}

	setDisabled := func(use, short string, value bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <username>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: withStore(func(ctx context.Context, store accounts.Store, cmd *cobra.Command, args []string) error {
				return setAccountDisabled(ctx, store, cmd.OutOrStdout(), args[0], value)
			}),
		}
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: withStore(func(ctx context.Context, store accounts.Store, cmd *cobra.Command, args []string) error {
			return listAccounts(ctx, store, cmd.OutOrStdout())
		}),
	}

	cmd.AddCommand(add, passwd, del, list,
		setDisabled("disable", "Disable an account", true),
		setDisabled("enable", "Enable a disabled account", false))
	return cmd
}

type storeFunc func(ctx context.Context, store accounts.Store, cmd *cobra.Command, args []string) error

// withStore opens the configured account store around fn.
func withStore(fn storeFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfigFromFile(configFilePath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		logger, err := initializeLogger(config.LogConfig{Level: "warn", Format: cfg.Log.Format})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		store, err := openAccountStore(ctx, cfg.Accounts, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn("Failed to close account store", zap.Error(err))
			}
		}()

		return fn(ctx, store, cmd, args)
	}
}

func resolvePassword(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}
	return "", errNoPassword
}

// addAccount stores a new account. The username is normalized the way the
// gate normalizes login names, so "alice@corp" creates "alice".
func addAccount(ctx context.Context, store accounts.Store, out io.Writer, username, password, home string, disabled bool) error {
	username = auth.NormalizeUsername(username)
	if err := accounts.ValidateUsername(username); err != nil {
		return fmt.Errorf("%w: %q", err, username)
	}

	hash, err := accounts.HashPassword(password)
	if err != nil {
		return err
	}

	err = store.Create(ctx, &accounts.Account{
		Username:     username,
		PasswordHash: hash,
		Home:         home,
		Disabled:     disabled,
	})
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", username, err)
	}

	fmt.Fprintf(out, "Account %s created\n", username)
	return nil
}

func changePassword(ctx context.Context, store accounts.Store, out io.Writer, username, password string) error {
	username = auth.NormalizeUsername(username)
	account, err := store.Get(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", username, err)
	}

	if account.PasswordHash, err = accounts.HashPassword(password); err != nil {
		return err
	}
	if err := store.Update(ctx, account); err != nil {
		return fmt.Errorf("failed to update %s: %w", username, err)
	}

	fmt.Fprintf(out, "Password of %s changed\n", username)
	return nil
}

func setAccountDisabled(ctx context.Context, store accounts.Store, out io.Writer, username string, disabled bool) error {
	username = auth.NormalizeUsername(username)
	account, err := store.Get(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", username, err)
	}

	account.Disabled = disabled
	if err := store.Update(ctx, account); err != nil {
		return fmt.Errorf("failed to update %s: %w", username, err)
	}

	state := "enabled"
	if disabled {
		state = "disabled"
	}
	fmt.Fprintf(out, "Account %s %s\n", username, state)
	return nil
}

func listAccounts(ctx context.Context, store accounts.Store, out io.Writer) error {
	list, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tHOME\tSTATUS\tCREATED")
	for _, a := range list {
		status := "active"
		if a.Disabled {
			status = "disabled"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Username, a.HomeDir(), status, a.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
