package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sawpanic/arbrouter/internal/app"
	"github.com/sawpanic/arbrouter/internal/config"
	"github.com/sawpanic/arbrouter/internal/httpserver"
	"github.com/sawpanic/arbrouter/internal/preflight"
	"github.com/sawpanic/arbrouter/internal/router"
	"github.com/sawpanic/arbrouter/internal/venue"
	"github.com/sawpanic/arbrouter/internal/vwap"
)

const appName = "arbrouter"

var version = "v0.1.0"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	var cfgPath string

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Cross-platform prediction-market arbitrage execution router",
		Version: version,
		Long: appName + ` preflights, sizes, dispatches, and monitors arbitrage legs
across Predict, Polymarket, and Opinion. Run 'arbrouter run' to execute a
single opportunity read from --legs, or 'arbrouter monitor' to serve the
read-only /health and /metrics surface.`,
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to the router YAML config")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one arbitrage opportunity's legs",
		RunE: func(cmd *cobra.Command, args []string) error {
			legsPath, _ := cmd.Flags().GetString("legs")
			serveHTTP, _ := cmd.Flags().GetBool("serve")
			return runOpportunity(cfgPath, legsPath, serveHTTP)
		},
	}
	runCmd.Flags().String("legs", "", "path to a JSON file describing the opportunity's legs (defaults to stdin)")
	runCmd.Flags().Bool("serve", false, "also start the /health and /metrics HTTP surface for the run's duration")

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Serve the read-only /health and /metrics HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cfgPath)
		},
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(monitorCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// legDTO is the on-disk/stdin JSON shape for one leg; run converts it
// to router.Leg before dispatch.
type legDTO struct {
	Venue      string  `json:"venue"`
	TokenID    string  `json:"token_id"`
	Side       string  `json:"side"`
	LimitPrice float64 `json:"limit_price"`
	Size       float64 `json:"size"`
}

func loadLegs(path string) ([]router.Leg, error) {
	var data []byte
	var err error
	if path == "" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read legs: %w", err)
	}

	var dtos []legDTO
	if err := json.Unmarshal(data, &dtos); err != nil {
		return nil, fmt.Errorf("parse legs: %w", err)
	}

	legs := make([]router.Leg, len(dtos))
	for i, d := range dtos {
		l := router.Leg{
			Venue:      router.Venue(d.Venue),
			TokenID:    d.TokenID,
			Side:       router.Side(d.Side),
			LimitPrice: d.LimitPrice,
			Size:       d.Size,
		}
		if !l.Valid() {
			return nil, fmt.Errorf("leg %d (%s/%s) fails validation: price must be in (0,1) and size positive", i, d.Venue, d.TokenID)
		}
		legs[i] = l
	}
	return legs, nil
}

func buildRegistry(cfg *config.Config) (*venue.Registry, error) {
	predict := venue.NewPredictAdapter(
		cfg.Venues.Predict.BaseURL,
		os.Getenv(cfg.Venues.Predict.APIKeyEnv),
		cfg.Venues.Predict.RequestsPerSecond,
	)
	opinion := venue.NewOpinionAdapter(
		cfg.Venues.Opinion.BaseURL,
		os.Getenv(cfg.Venues.Opinion.APIKeyEnv),
		cfg.Venues.Opinion.RequestsPerSecond,
	)
	polymarket, err := venue.NewPolymarketAdapter(
		cfg.Venues.Polymarket.BaseURL,
		cfg.Venues.Polymarket.WsURL,
		os.Getenv(cfg.Venues.Polymarket.PrivateKeyEnv),
	)
	if err != nil {
		return nil, fmt.Errorf("polymarket adapter: %w", err)
	}

	return venue.NewRegistry(map[router.Venue]venue.Adapter{
		router.VenuePredict:    predict,
		router.VenueOpinion:    opinion,
		router.VenuePolymarket: polymarket,
	}), nil
}

// feeLookupFrom closes over the configured per-venue fee curves so C2's
// VWAP walk and C4's sizer see the same numbers regardless of which
// component asked.
func feeLookupFrom(cfg *config.Config) preflight.FeeLookup {
	curve := func(vc config.VenueConnConfig) (float64, *vwap.FeeCurve) {
		return vc.FeeBps, &vwap.FeeCurve{Rate: vc.FeeCurveRate, Exponent: vc.FeeCurveExponent}
	}
	return func(v router.Venue) (float64, *vwap.FeeCurve) {
		switch v {
		case router.VenuePredict:
			return curve(cfg.Venues.Predict)
		case router.VenuePolymarket:
			return curve(cfg.Venues.Polymarket)
		case router.VenueOpinion:
			return curve(cfg.Venues.Opinion)
		default:
			return 100, &vwap.FeeCurve{Rate: 0.002, Exponent: 2}
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		log.Warn().Str("path", path).Msg("main: config file not found, using built-in defaults")
		return config.Default(), nil
	}
	return config.Load(path)
}

func runOpportunity(cfgPath, legsPath string, serveHTTP bool) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	legs, err := loadLegs(legsPath)
	if err != nil {
		return err
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	a := app.New(cfg, registry, feeLookupFrom(cfg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serveHTTP {
		srv := httpserver.New(httpserver.Config{Host: cfg.HTTP.Host, Port: cfg.HTTP.Port, ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, IdleTimeout: 60 * time.Second}, a.Healthy)
		go func() {
			if err := srv.ListenAndServe(ctx); err != nil {
				log.Error().Err(err).Msg("httpserver: stopped with error")
			}
		}()
	}

	rerr := a.ExecuteOpportunity(ctx, legs)
	if rerr != nil {
		log.Error().Err(rerr).Str("gate", string(rerr.Gate)).Bool("had_success", rerr.HadSuccess).Msg("run: opportunity failed")
		return rerr
	}
	log.Info().Int("legs", len(legs)).Msg("run: opportunity executed successfully")
	return nil
}

func runMonitor(cfgPath string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	a := app.New(cfg, registry, feeLookupFrom(cfg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := httpserver.New(httpserver.Config{Host: cfg.HTTP.Host, Port: cfg.HTTP.Port, ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, IdleTimeout: 60 * time.Second}, a.Healthy)
	log.Info().Str("host", cfg.HTTP.Host).Int("port", cfg.HTTP.Port).Msg("monitor: serving /health and /metrics")
	return srv.ListenAndServe(ctx)
}
