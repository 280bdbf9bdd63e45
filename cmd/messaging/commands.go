package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-messaging/adapters/gojob"
	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/inbound"
)

func serveCmd() *cobra.Command {
	var autoMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and maintenance loop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadFileConfig(configPath)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg, logger, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if autoMigrate {
				if err := migrate(ctx, a.client, cfg.Database.Driver); err != nil {
					return err
				}
			}
			if _, err := a.service.ReloadAllowlists(ctx); err != nil {
				return err
			}

			verifier, err := a.webhookVerifier(ctx)
			if err != nil {
				return err
			}
			dispatcher := inbound.NewDispatcher(verifier, inbound.NewInMemoryClaimStore())
			dispatcher.Logger = logger
			for _, handler := range inbound.ChannelHandlers(a.service) {
				if err := dispatcher.Register(handler); err != nil {
					return err
				}
			}

			runner, err := gojob.NewMaintenanceRunner(a.service, gojob.NewLocalQueue(), gojob.RetryPolicy{
				MaxAttempts:     cfg.Maintenance.MaxAttempts,
				DeadLetterOnMax: true,
			}, cfg.Maintenance.Interval, logger)
			if err != nil {
				return err
			}

			server := &http.Server{
				Addr: cfg.HTTP.Addr,
				Handler: (&webhookServer{
					dispatcher: dispatcher,
					health:     a.service,
					publicURL:  cfg.HTTP.PublicURL,
					maxBody:    cfg.HTTP.MaxBodyBytes,
					logger:     logger,
				}).routes(),
				ReadTimeout:  cfg.HTTP.ReadTimeout,
				WriteTimeout: cfg.HTTP.WriteTimeout,
			}

			group, groupCtx := errgroup.WithContext(ctx)
			group.Go(func() error {
				logger.Info("webhook server listening", "addr", cfg.HTTP.Addr, "carriers", strings.Join(verifier.Carriers(), ","))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			group.Go(func() error {
				if err := runner.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
			group.Go(func() error {
				<-groupCtx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})
			err = group.Wait()
			logger.Info("messaging stopped")
			return err
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "migrate", false, "apply migrations before serving")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadFileConfig(configPath)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log)
			client, err := openDatabase(cfg.Database)
			if err != nil {
				return err
			}
			defer client.Close()
			if err := migrate(cmd.Context(), client, cfg.Database.Driver); err != nil {
				return err
			}
			logger.Info("migrations applied", "driver", cfg.Database.Driver)
			return nil
		},
	}
}

func allowlistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "allowlist",
		Short: "Manage the email and SMS allowlists",
	}

	var addedBy string
	add := &cobra.Command{
		Use:   "add <email|sms> <identifier>",
		Short: "Allow a sender to receive auto replies",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *core.Service) error {
				scope, err := core.ParseAllowlistScope(args[0])
				if err != nil {
					return err
				}
				entry, err := svc.AddAllowlistEntry(ctx, scope, args[1], addedBy)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s %s\n", entry.Scope, entry.Identifier)
				return nil
			})
		},
	}
	add.Flags().StringVar(&addedBy, "by", "cli", "who added the entry")

	remove := &cobra.Command{
		Use:   "remove <email|sms> <identifier>",
		Short: "Remove a sender from the allowlist",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *core.Service) error {
				scope, err := core.ParseAllowlistScope(args[0])
				if err != nil {
					return err
				}
				if err := svc.RemoveAllowlistEntry(ctx, scope, args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s %s\n", scope, args[1])
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list <email|sms>",
		Short: "List allowlisted senders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *core.Service) error {
				scope, err := core.ParseAllowlistScope(args[0])
				if err != nil {
					return err
				}
				entries, err := svc.ListAllowlist(scope)
				if err != nil {
					return err
				}
				out := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(out, "IDENTIFIER\tADDED BY\tADDED AT")
				for _, entry := range entries {
					fmt.Fprintf(out, "%s\t%s\t%s\n", entry.Identifier, entry.AddedBy, entry.AddedAt.Format(time.RFC3339))
				}
				return out.Flush()
			})
		},
	}

	cmd.AddCommand(add, remove, list)
	return cmd
}

func secretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Seal provider credentials for the config file",
	}
	seal := &cobra.Command{
		Use:   "seal <value>",
		Short: "Seal a value with the app key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadFileConfig(configPath)
			if err != nil {
				return err
			}
			provider, err := newSecretProvider(cfg.AppKey)
			if err != nil {
				return err
			}
			if provider == nil {
				return fmt.Errorf("secret: app_key or %s is required", appKeyEnv)
			}
			sealed, err := provider.Seal(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
	cmd.AddCommand(seal)
	return cmd
}

// withService opens the service over the configured database without
// carrier providers and reloads the persisted allowlists first.
func withService(ctx context.Context, fn func(context.Context, *core.Service) error) error {
	cfg, err := loadFileConfig(configPath)
	if err != nil {
		return err
	}
	a, err := openApp(ctx, cfg, newLogger(cfg.Log), false)
	if err != nil {
		return err
	}
	defer a.Close()
	if _, err := a.service.ReloadAllowlists(ctx); err != nil {
		return err
	}
	return fn(ctx, a.service)
}
