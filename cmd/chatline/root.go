package main

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/eldtechnologies/chatline/clients/go/chatline"
	"github.com/eldtechnologies/chatline/internal/config"
)

var (
	serverURL   string
	username    string
	password    string
	metricsAddr string
	verbose     bool

	cfg    *config.Client
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chatline",
	Short: "Terminal client for a chatline server",
	Long: `Register, read history and chat live from the terminal.

Flags fall back to the environment:
  CHATLINE_URL, CHATLINE_WS_URL, CHATLINE_USER, CHATLINE_PASSWORD,
  CHATLINE_BACKOFF_FLOOR, CHATLINE_BACKOFF_CEILING,
  CHATLINE_METRICS_ADDR, CHATLINE_LOG_LEVEL`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadClient()
		if err != nil {
			return err
		}
		if serverURL == "" {
			serverURL = cfg.BaseURL
		}
		if username == "" {
			username = cfg.Username
		}
		if password == "" {
			password = cfg.Password
		}
		if metricsAddr == "" {
			metricsAddr = cfg.MetricsAddr
		}

		level, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			level = zerolog.InfoLevel
		}
		if verbose {
			level = zerolog.DebugLevel
		}
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			Level(level).
			With().
			Timestamp().
			Logger()

		if metricsAddr != "" {
			go serveMetrics(metricsAddr)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", "", "Server base URL")
	rootCmd.PersistentFlags().StringVarP(&username, "user", "u", "", "Username")
	rootCmd.PersistentFlags().StringVarP(&password, "password", "p", "", "Password")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(registerCmd, chatCmd, historyCmd)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logger.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server")
	}
}

func newClient() *chatline.Client {
	return chatline.NewClient(serverURL)
}

func requireCredentials() error {
	if username == "" || password == "" {
		return errors.New("username and password are required (--user/--password or CHATLINE_USER/CHATLINE_PASSWORD)")
	}
	return nil
}
