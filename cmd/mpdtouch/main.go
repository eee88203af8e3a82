// Command mpdtouch is a remote-control front end for the Music Player
// Daemon. It keeps one coordinated connection to mpd, accepts single-byte
// UDP remote commands, and publishes player state to websocket observers.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nikoskalogridis/mpdtouch/internal/mpdcontrol"
	"github.com/nikoskalogridis/mpdtouch/internal/nav"
	"github.com/nikoskalogridis/mpdtouch/internal/remote"
	"github.com/nikoskalogridis/mpdtouch/internal/statews"
)

// Version information (set at build time).
var version = "dev"

// Channel sizes between the producers and the frontend loop.
const (
	notifyBuf  = 64
	navBuf     = 64
	publishBuf = 128
)

type rootFlags struct {
	configPath string
	logLevel   string
	mpdAddress string
	mpdNetwork string
	remotePort int
	wsListen   string
}

// overrides returns only the flags the user actually set.
func (f *rootFlags) overrides(cmd *cobra.Command) FlagOverrides {
	var o FlagOverrides
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		o.LogLevel = &f.logLevel
	}
	if flags.Changed("mpd-address") {
		o.MPDAddress = &f.mpdAddress
	}
	if flags.Changed("mpd-network") {
		o.MPDNetwork = &f.mpdNetwork
	}
	if flags.Changed("remote-port") {
		o.RemotePort = &f.remotePort
	}
	if flags.Changed("ws-listen") {
		o.WSListen = &f.wsListen
	}
	return o
}

// resolveConfig applies defaults, file, environment and flags, in that order.
func (f *rootFlags) resolveConfig(cmd *cobra.Command) (Config, string, error) {
	cfg, path, err := loadConfig(f.configPath)
	if err != nil {
		return Config{}, path, err
	}
	cfg.ApplyEnv(os.Getenv)
	f.overrides(cmd).Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, path, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, path, nil
}

func newLogger(cfg Config, w io.Writer) *slog.Logger {
	level, _ := parseLogLevel(cfg.Logging.Level) // validated already
	return setupLogger(level, w)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "mpdtouch",
		Short: "Remote-control front end for the Music Player Daemon",
		Long: `mpdtouch - remote-control front end for mpd

Keeps a single coordinated connection to mpd, reacts to player events,
accepts one-byte UDP remote commands and publishes player state over a
websocket.`,
		Example: `  # Run with the config from $XDG_CONFIG_HOME/mpdtouch/config.yaml
  mpdtouch

  # Enable the UDP remote on port 6601 and the status websocket
  mpdtouch --remote-port 6601 --ws-listen :8090

  # Send a remote command to a running instance
  mpdtouch remote activate

  # Write a default config file
  mpdtouch config init`,
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := flags.resolveConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stdout)
			logger.Info("starting mpdtouch", "version", version, "config", path)
			logger.Debug("configuration",
				"mpd_network", cfg.MPD.Network,
				"mpd_address", cfg.MPD.Address,
				"poll_interval_ms", cfg.MPD.PollIntervalMS,
				"max_failures", cfg.MPD.MaxFailures,
				"remote_enabled", cfg.Remote.Port != nil,
				"ws_listen", cfg.StatusWS.Listen,
				"volume_step", cfg.Frontend.VolumeStep,
				"page_size", cfg.Frontend.PageSize)
			return runDaemon(cmd.Context(), cfg, logger)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Path to config file (default: search XDG config dirs for "+configRelPath+")")
	pf.StringVar(&flags.logLevel, "log-level", "info", "Log level: error, warn, info, debug")
	pf.StringVar(&flags.mpdAddress, "mpd-address", "", "mpd address (host:port, or socket path with --mpd-network unix)")
	pf.StringVar(&flags.mpdNetwork, "mpd-network", "", "mpd network: tcp or unix")
	pf.IntVar(&flags.remotePort, "remote-port", 0, "UDP port for the remote-control listener")
	pf.StringVar(&flags.wsListen, "ws-listen", "", "Listen address of the status websocket server (e.g. :8090)")

	rootCmd.AddCommand(newRemoteCmd(flags), newStatusCmd(flags), newConfigCmd(flags))
	return rootCmd
}

func newRemoteCmd(flags *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "remote <command>",
		Short: "Send one remote-control command to a running instance",
		Long: `Send one remote-control command as a single-byte UDP datagram.

Commands: left, right, up, down, next, prev, activate, scroll-up, scroll-down.
The raw command byte (l r u d n p a > <) is accepted too.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: remote.CommandNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := remote.ParseCommand(args[0])
			if err != nil {
				return err
			}
			if addr == "" {
				cfg, _, err := flags.resolveConfig(cmd)
				if err != nil {
					return err
				}
				if cfg.Remote.Port == nil {
					return fmt.Errorf("remote.port is not configured; pass --addr")
				}
				host := cfg.Remote.Bind
				if host == "" {
					host = "127.0.0.1"
				}
				addr = remote.Addr(host, *cfg.Remote.Port)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
			defer cancel()
			return remote.Send(ctx, addr, b)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listener address host:port (default: from config)")
	return cmd
}

func newStatusCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the current player state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := flags.resolveConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)
			return runStatus(cmd.Context(), cfg, logger, cmd.OutOrStdout())
		},
	}
}

func newConfigCmd(flags *rootFlags) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage mpdtouch configuration",
	}

	configPathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print configuration file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.configPath != "" {
				fmt.Fprintln(cmd.OutOrStdout(), ExpandPath(flags.configPath))
				return nil
			}
			if p, ok := findConfigFile(); ok {
				fmt.Fprintln(cmd.OutOrStdout(), p)
				return nil
			}
			p, err := defaultConfigPath()
			if err != nil {
				return fmt.Errorf("resolve config path: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
			return nil
		},
	}

	configInitCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := ExpandPath(flags.configPath)
			if p == "" {
				var err error
				if p, err = defaultConfigPath(); err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
			}
			if err := writeDefaultConfig(p); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote", p)
			return nil
		},
	}

	configCmd.AddCommand(configPathCmd, configInitCmd)
	return configCmd
}

func dialMPD(cfg Config, logger *slog.Logger) (*mpdcontrol.Session, error) {
	sess, err := mpdcontrol.Dial(mpdcontrol.DialConfig{
		Network:  cfg.MPD.Network,
		Address:  cfg.MPD.Address,
		Password: cfg.MPD.Password,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("connected to mpd", "network", cfg.MPD.Network, "address", cfg.MPD.Address)
	return sess, nil
}

func coordinatorOptions(cfg Config, logger *slog.Logger) mpdcontrol.Options {
	return mpdcontrol.Options{
		PollInterval: cfg.PollInterval(),
		MaxFailures:  cfg.MPD.MaxFailures,
		Logger:       logger.With("component", "mpd"),
	}
}

// runDaemon connects and binds everything up front so configuration
// problems fail fast, then supervises the goroutines until ctx is canceled
// or one of them fails.
func runDaemon(ctx context.Context, cfg Config, logger *slog.Logger) error {
	sess, err := dialMPD(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Debug("mpd close", "error", err)
		}
	}()

	notify := make(chan mpdcontrol.Notification, notifyBuf)
	navs := make(chan nav.Event, navBuf)
	coord := mpdcontrol.New(sess, notify, coordinatorOptions(cfg, logger))

	var listener *remote.Listener
	if cfg.Remote.Port != nil {
		addr := remote.Addr(cfg.Remote.Bind, *cfg.Remote.Port)
		listener, err = remote.Listen(ctx, addr, navs, logger.With("component", "remote"))
		if err != nil {
			return err
		}
	} else {
		logger.Info("remote control disabled (remote.port not set)")
	}

	var (
		publish chan statews.Event
		httpLn  net.Listener
	)
	if cfg.StatusWS.Listen != "" {
		publish = make(chan statews.Event, publishBuf)
		httpLn, err = net.Listen("tcp", cfg.StatusWS.Listen)
		if err != nil {
			if listener != nil {
				listener.Stop()
			}
			return fmt.Errorf("listen on %s: %w", cfg.StatusWS.Listen, err)
		}
	}

	fe := newFrontend(coord, publish, cfg.Frontend, logger.With("component", "frontend"))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := coord.Run(gctx); err != nil {
			return fmt.Errorf("mpd coordinator: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return fe.Run(gctx, notify, navs)
	})

	if listener != nil {
		g.Go(func() error {
			return listener.Run(gctx)
		})
	}

	if httpLn != nil {
		wsLogger := logger.With("component", "ws")
		srv := statews.NewServer(wsLogger, coord, statews.ServerConfig{})
		mux := http.NewServeMux()
		srv.Register(mux, cfg.StatusWS.Path)
		registerControlHandlers(mux, fe, navs, logger.With("component", "http"))

		g.Go(func() error {
			srv.Hub().Run(gctx)
			return nil
		})
		g.Go(func() error {
			statews.RunBroadcaster(gctx, srv.Hub(), publish, wsLogger)
			return nil
		})
		g.Go(func() error {
			return serveHTTP(gctx, httpLn, mux, logger.With("component", "http"))
		})
	}

	err = g.Wait()
	logger.Info("shutting down")
	return err
}

// runStatus runs a short-lived coordinator to answer one snapshot query.
func runStatus(ctx context.Context, cfg Config, logger *slog.Logger, w io.Writer) error {
	sess, err := dialMPD(cfg, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	coord := mpdcontrol.New(sess, nil, coordinatorOptions(cfg, logger))
	go coord.Run(ctx)
	defer func() {
		coord.Stop()
		<-coord.Done()
	}()

	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	snap, err := coord.Snapshot(qctx)
	if err != nil {
		return fmt.Errorf("query status: %w", err)
	}
	printSnapshot(w, snap)
	return nil
}

func printSnapshot(w io.Writer, snap mpdcontrol.Snapshot) {
	fmt.Fprintf(w, "state:    %s\n", snap.State)
	if snap.HasSong {
		title := snap.Title
		if snap.Artist != "" && title != "" {
			title = snap.Artist + " - " + title
		}
		if title == "" {
			title = snap.URI
		}
		if snap.Album != "" {
			title += " (" + snap.Album + ")"
		}
		fmt.Fprintf(w, "song:     %s\n", title)
		fmt.Fprintf(w, "file:     %s\n", snap.URI)
	}
	random := "off"
	if snap.Random {
		random = "on"
	}
	fmt.Fprintf(w, "random:   %s\n", random)
	if snap.Volume >= 0 {
		fmt.Fprintf(w, "volume:   %d%%\n", snap.Volume)
	} else {
		fmt.Fprintf(w, "volume:   n/a\n")
	}
	fmt.Fprintf(w, "playlist: version %d, %d entries\n", snap.PlaylistVersion, snap.PlaylistLength)
}
