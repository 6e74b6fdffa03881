package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hession/mentorjournal/internal/api"
	"github.com/hession/mentorjournal/internal/calendar"
	"github.com/hession/mentorjournal/internal/cli"
	"github.com/hession/mentorjournal/internal/config"
)

var (
	version = "0.2.0"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	var configDir string

	rootCmd := &cobra.Command{
		Use:   "mentorjournal",
		Short: "mentorjournal - Daily journaling with a team of mentors",
		Long: `mentorjournal is a journaling companion: every day you write to the
journaling mentor, and a rotating team of mentors checks in on your health,
relationships, purpose, growth, finances and mindfulness.

It can:
  • Hold one chat per day, with a conversation per mentor
  • Remember what you told each mentor
  • Suggest who to talk to next
  • Serve the same chats over HTTP for a web UI`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if configDir != "" {
				config.SetConfigDir(configDir)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context())
		},
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ./config)")

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Open today's chat in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context())
		},
	}

	var addr string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), addr)
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")

	chatsCmd := &cobra.Command{
		Use:   "chats",
		Short: "List stored chats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				chats, err := a.svc.FetchOldChats(cmd.Context())
				if err != nil {
					return err
				}
				if len(chats) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No chats yet")
					return nil
				}
				today := a.svc.Today()
				for _, c := range chats {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", c.ID, calendar.Relative(c.ID, today))
				}
				return nil
			})
		},
	}

	suggestCmd := &cobra.Command{
		Use:   "suggest [date]",
		Short: "Show which mentors to talk to next",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				date := a.svc.Today()
				if len(args) == 1 {
					date = args[0]
				}
				if !calendar.Valid(date) {
					return fmt.Errorf("invalid date %q, use YYYY-MM-DD", date)
				}
				suggestions, err := a.svc.GetAgentSuggestions(cmd.Context(), date)
				if err != nil {
					return err
				}
				for _, s := range suggestions {
					fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", s.MentorID, s.Reason)
				}
				return nil
			})
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show or manage configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.String())

			path, _ := config.ConfigPath()
			fmt.Fprintf(cmd.OutOrStdout(), "\nConfig file path: %s\n", path)
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mentorjournal v%s\n", version)
		},
	}

	rootCmd.AddCommand(chatCmd, serveCmd, chatsCmd, suggestCmd, configCmd, versionCmd)
	return rootCmd
}

// withApp runs fn with a wired app that logs to the file only
func withApp(ctx context.Context, fn func(a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func runChat(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.IsAPIKeyConfigured() {
		if err := cli.PromptAPIKey(cfg); err != nil {
			return err
		}
	}

	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	return cli.New(cli.Options{Service: a.svc, Hub: a.hub, Config: cfg}).Run(ctx)
}

func runServe(ctx context.Context, addr string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	h := api.New(api.Options{
		Service:        a.svc,
		Hub:            a.hub,
		Metrics:        a.metrics,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         a.logger,
	})

	// SSE replies need long writes, so there is no WriteTimeout
	srv := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     h.Router(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	stop()

	a.logger.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}
