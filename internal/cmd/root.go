package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/niels/nweb/pkg/access"
	"github.com/niels/nweb/pkg/config"
	"github.com/niels/nweb/pkg/logging"
	"github.com/niels/nweb/pkg/server"
	"github.com/niels/nweb/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// options holds the flag values shared by the root, serve and get commands
type options struct {
	configPath     string
	debug          bool
	showVersion    bool
	port           int
	docroot        string
	threads        int
	strictMime     bool
	replyMalformed bool
	accessLog      bool

	cfg *config.Config
}

// NewRootCmd creates the root command for nweb. Running it without a
// subcommand serves the document root.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   version.AppName,
		Short: version.Description,
		Long: fmt.Sprintf(`%s - %s

Serves the files below a document root over HTTP/1.1 with a fixed pool of
workers. Every connection carries exactly one GET request and is closed after
the response.
`, version.AppName, version.Description),
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			opts.cfg = cfg

			logging.InitGlobalLogger(opts.debug, cfg)
			logging.Debug("Debug logging enabled")
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				fmt.Fprintln(cmd.OutOrStdout(), version.GetVersionInfo())
				return nil
			}
			return runServe(cmd, opts)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	rootCmd.Flags().BoolVarP(&opts.showVersion, "version", "v", false, "Show version information")
	addServeFlags(rootCmd.Flags(), opts)

	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newGetCmd(opts))

	return rootCmd
}

func newServeCmd(opts *options) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:          "serve",
		Short:        "Serve the document root (default command)",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	addServeFlags(serveCmd.Flags(), opts)
	return serveCmd
}

func addServeFlags(flags *pflag.FlagSet, opts *options) {
	flags.IntVarP(&opts.port, "port", "p", 0, fmt.Sprintf("Port to listen on (%d-%d)", config.MinPort, config.MaxPort))
	flags.StringVarP(&opts.docroot, "docroot", "d", "", "Directory to serve files from")
	flags.IntVarP(&opts.threads, "threads", "t", 0, "Number of worker goroutines")
	flags.BoolVar(&opts.strictMime, "strict-mime", false, "Answer 415 for files with an unknown extension")
	flags.BoolVar(&opts.replyMalformed, "reply-malformed", false, "Answer 400 to malformed requests instead of closing")
	flags.BoolVar(&opts.accessLog, "access-log", false, "Print one line per served connection")
}

// loadConfig builds the configuration from defaults, the optional config
// file, the environment and finally the flags set on cmd.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	var cfg *config.Config
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
		config.ApplyEnv(cfg)
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = opts.port
	}
	if flags.Changed("docroot") {
		cfg.Server.DocRoot = opts.docroot
	}
	if flags.Changed("threads") {
		cfg.Server.Workers = opts.threads
	}
	if flags.Changed("strict-mime") {
		cfg.Server.StrictMime = opts.strictMime
	}
	if flags.Changed("reply-malformed") {
		cfg.Server.ReplyMalformed = opts.replyMalformed
	}
	if flags.Changed("access-log") {
		cfg.Logging.AccessLog = opts.accessLog
	}

	return cfg, nil
}

func runServe(cmd *cobra.Command, opts *options) error {
	cfg := opts.cfg
	if err := cfg.Validate(); err != nil {
		logging.ErrorWith("Invalid configuration", map[string]interface{}{
			"error": err,
		})
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logging.InfoWith("Starting nweb", map[string]interface{}{
		"version": version.Version,
		"config":  opts.configPath,
	})
	if cfg.ReadTimeoutDuration() == 0 {
		logging.WarnWith("No read timeout configured, a silent peer holds a worker until shutdown", map[string]interface{}{
			"workers": cfg.Server.Workers,
		})
	}

	ln, err := server.Listen(cfg)
	if err != nil {
		logging.ErrorWith("Failed to start server", map[string]interface{}{
			"error":   err,
			"address": cfg.Address(),
		})
		return err
	}

	srv := server.New(cfg, ln, logging.WithComponent("server"))
	if cfg.Logging.AccessLog {
		srv.WithTracker(access.NewConsoleTracker().WithWriter(cmd.OutOrStdout()))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Serve(ctx); err != nil {
		return err
	}
	logging.Info("nweb stopped")
	return nil
}
