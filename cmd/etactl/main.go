package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"eta-service/internal/common"
	"eta-service/internal/eta"
	"eta-service/internal/etaclient"
	"eta-service/internal/geo"
	"eta-service/internal/storage"
)

var (
	serviceURL string
	timeout    time.Duration
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "etactl",
	Short: "Query a running ETA service",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.WarnLevel)
		}
	},
	SilenceUsage: true,
}

func init() {
	defaultURL := os.Getenv(common.EnvServiceURL)
	if defaultURL == "" {
		defaultURL = common.DefaultServiceURL
	}
	rootCmd.PersistentFlags().StringVarP(&serviceURL, "url", "u", defaultURL, "ETA service base URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", common.DefaultClientTimeout, "request timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(predictCmd(), healthCmd(), modelInfoCmd(), distanceCmd(), recordsCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func client() *etaclient.Client {
	return etaclient.New(serviceURL, timeout)
}

func predictCmd() *cobra.Command {
	var (
		distance      float64
		from, to      string
		hour, traffic int
		weather       int
		weight        float64
		local         bool
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict the delivery time for a trip",
		Example: `  etactl predict --distance 12.5 --traffic 3
  etactl predict --from 12.9716,77.5946 --to 12.9352,77.6245`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if from != "" || to != "" {
				pickup, err := parsePoint(from)
				if err != nil {
					return fmt.Errorf("--from: %w", err)
				}
				delivery, err := parsePoint(to)
				if err != nil {
					return fmt.Errorf("--to: %w", err)
				}
				distance = geo.Haversine(pickup, delivery)
			}
			if !(distance > 0) {
				return fmt.Errorf("a positive --distance or both --from and --to are required")
			}

			params := etaclient.Params{Distance: distance, Weight: weight}
			if cmd.Flags().Changed("hour") {
				params.HourOfDay = &hour
			}
			if cmd.Flags().Changed("traffic") {
				params.TrafficLevel = &traffic
			}
			if cmd.Flags().Changed("weather") {
				params.Weather = &weather
			}

			if local {
				h := time.Now().Hour()
				if params.HourOfDay != nil {
					h = *params.HourOfDay
				}
				t := eta.DefaultTrafficLevel
				if params.TrafficLevel != nil {
					t = *params.TrafficLevel
				}
				minutes := eta.Estimate(distance, h, t)
				return printJSON(map[string]any{
					"distance":      distance,
					"eta_minutes":   minutes,
					"eta_formatted": eta.Format(minutes),
					"confidence":    eta.FallbackConfidence,
					"method":        eta.MethodFallback,
				})
			}

			est, err := client().PredictETA(cmd.Context(), params)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"distance":           distance,
				"eta_minutes":        est.ETAMinutes,
				"eta_formatted":      est.ETAFormatted,
				"confidence":         est.Confidence,
				"method":             est.Method,
				"estimated_delivery": est.EstimatedDelivery.Format(time.RFC3339),
				"computed_locally":   est.Local,
			})
		},
	}

	cmd.Flags().Float64VarP(&distance, "distance", "d", 0, "haversine distance in km")
	cmd.Flags().StringVar(&from, "from", "", "pickup as lat,lng")
	cmd.Flags().StringVar(&to, "to", "", "delivery as lat,lng")
	cmd.Flags().IntVar(&hour, "hour", 0, "hour of day 0-23 (default current hour)")
	cmd.Flags().IntVar(&traffic, "traffic", eta.DefaultTrafficLevel, "traffic level 1-4")
	cmd.Flags().IntVar(&weather, "weather", eta.DefaultWeather, "weather 1-4")
	cmd.Flags().Float64Var(&weight, "weight", eta.DefaultWeight, "package weight in kg")
	cmd.Flags().BoolVar(&local, "local", false, "compute the fallback formula without calling the service")
	return cmd
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show service health",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := client().Health(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(h)
		},
	}
}

func modelInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "model-info",
		Short: "Show the model the service loaded",
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := client().ModelInfo(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(info)
		},
	}
}

func distanceCmd() *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "distance <lat,lng> <lat,lng>",
		Short: "Straight-line and estimated road distance between two points",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pickup, err := parsePoint(args[0])
			if err != nil {
				return fmt.Errorf("pickup: %w", err)
			}
			delivery, err := parsePoint(args[1])
			if err != nil {
				return fmt.Errorf("delivery: %w", err)
			}

			if remote {
				d, err := client().Distance(cmd.Context(), pickup, delivery)
				if err != nil {
					return err
				}
				return printJSON(d)
			}

			km := geo.Haversine(pickup, delivery)
			return printJSON(map[string]float64{
				"haversine_km":     km,
				"road_estimate_km": geo.RoadEstimate(km),
			})
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "ask the service instead of computing locally")
	return cmd
}

func recordsCmd() *cobra.Command {
	var (
		dataPath string
		since    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "records",
		Short: "List recorded predictions (the server must not hold the database open)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dataPath == "" {
				return fmt.Errorf("--data-path or %s is required", common.EnvDataPath)
			}
			store, err := storage.New(dataPath)
			if err != nil {
				return err
			}
			defer store.Close()

			end := time.Now()
			records, err := store.GetPredictionsInRange(end.Add(-since), end)
			if err != nil {
				return err
			}
			total, err := store.Count()
			if err != nil {
				return err
			}
			log.Debug().Int("total", total).Int("listed", len(records)).Msg("records loaded")

			return printJSON(map[string]any{
				"total":   total,
				"records": records,
			})
		},
	}
	cmd.Flags().StringVar(&dataPath, "data-path", os.Getenv(common.EnvDataPath), "directory holding the prediction database")
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "how far back to list")
	return cmd
}

func parsePoint(s string) (geo.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return geo.Point{}, fmt.Errorf("expected lat,lng, got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("longitude: %w", err)
	}
	p := geo.Point{Lat: lat, Lng: lng}
	return p, p.Validate()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
