// portalbot publishes news to the portal automatically.
//
// Usage:
//
//	portalbot serve          # API + automation scheduler
//	portalbot run            # one cycle, then exit
//	portalbot migrate        # create tables and seed categories
//	portalbot create-admin   # create an operator account
//	portalbot mcp            # MCP tools on stdio
//	portalbot version
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/RobinCoderZhao/portal-autopost/internal/api"
	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/app"
	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/config"
	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/cycle"
	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/operator"
	"github.com/RobinCoderZhao/portal-autopost/internal/user"
	"github.com/RobinCoderZhao/portal-autopost/pkg/cards"
	"github.com/RobinCoderZhao/portal-autopost/pkg/logging"
	"github.com/RobinCoderZhao/portal-autopost/pkg/mcpserver"
)

var version = "dev"

const devJWTSecret = "portalbot-dev-secret"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "portalbot",
		Short:         "Automatic news publishing for the portal",
		Long:          "portalbot busca notícias, reescreve com IA e publica no portal em intervalos regulares.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "portalbot.yaml", "config file (optional)")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(runCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(createAdminCmd(&configPath))
	rootCmd.AddCommand(mcpCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logging.New(cfg.Log)
	return cfg, nil
}

func serveCmd(configPath *string) *cobra.Command {
	var autostart bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API and the automation scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("autostart") {
				cfg.Scheduler.Autostart = autostart
			}
			return serve(cfg)
		},
	}

	cmd.Flags().BoolVar(&autostart, "autostart", false, "start the automation as soon as the server is up")
	return cmd
}

func serve(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	secret := cfg.API.JWTSecret
	if secret == "" {
		if cfg.IsProduction() {
			return errors.New("JWT_SECRET is required in production")
		}
		slog.Warn("JWT_SECRET not set, using development secret")
		secret = devJWTSecret
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := api.Options{
		ResetCredential: a.Runner.ResetCredential,
		TokenTTL:        cfg.API.TokenTTL,
		CORSOrigin:      cfg.API.CORSOrigin,
		Cards:           cards.NewRenderer(),
		SiteName:        siteName(cfg.Notify.SiteURL),
	}
	if a.Analyzer != nil {
		opts.Summarizer = a.Analyzer
	}
	server := api.NewServer(a.Profiles, a.Posts, a.Scheduler, secret, opts)

	srv := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", cfg.API.Addr, "env", cfg.Environment, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if cfg.Scheduler.Autostart {
		// Start runs the first cycle synchronously.
		go func() {
			if err := a.Scheduler.Start(); err != nil {
				slog.Warn("automation autostart failed", "error", err)
			}
		}()
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("API server: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	a.Scheduler.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	return nil
}

// siteName is the host shown on share cards.
func siteName(siteURL string) string {
	u, err := url.Parse(siteURL)
	if err != nil || u.Host == "" {
		return siteURL
	}
	return u.Host
}

func runCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a single automation cycle and print its log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			res := a.Runner.Run(ctx, func(e cycle.LogEntry) {
				fmt.Fprintf(out, "%s [%-7s] %s\n", e.Time.Format("15:04:05"), e.Level, e.Message)
			})
			fmt.Fprintf(out, "\nResultado: %s", res.Outcome)
			if res.PostID != 0 {
				fmt.Fprintf(out, " (post %d)", res.PostID)
			}
			fmt.Fprintln(out)
			if res.Outcome == cycle.OutcomeFailed {
				return fmt.Errorf("cycle %s failed", res.ID)
			}
			return nil
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database tables and seed categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			db, err := app.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Banco %s pronto\n", cfg.Database.DSN)
			return nil
		},
	}
}

func createAdminCmd(configPath *string) *cobra.Command {
	var name, email, password, role string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an operator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" || password == "" {
				return errors.New("--email and --password are required")
			}
			switch role {
			case user.RoleAdmin, user.RoleEditor, user.RoleReader:
			default:
				return fmt.Errorf("invalid role %q", role)
			}
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			db, err := app.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			id, err := user.NewStore(db).CreateProfile(cmd.Context(), name, email, string(hash), role)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Perfil %d criado (%s, %s)\n", id, email, role)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "Administrador", "display name")
	cmd.Flags().StringVar(&email, "email", "", "login e-mail")
	cmd.Flags().StringVar(&password, "password", "", "login password")
	cmd.Flags().StringVar(&role, "role", user.RoleAdmin, "admin, editor or reader")
	return cmd
}

func mcpCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the automation as MCP tools on stdin/stdout",
		Long:  "Expõe status, início, parada e execução de ciclos como ferramentas MCP para assistentes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			s := mcpserver.New("portalbot", version)
			s.Register(operator.Tools(a.Scheduler, a.Posts)...)
			return s.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "portalbot %s\n", version)
		},
	}
}
