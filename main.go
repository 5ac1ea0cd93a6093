package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"lamed/internal/config"
	"lamed/internal/core"
	"lamed/internal/counter"
	"lamed/internal/handler"
	"lamed/internal/logger"
	"lamed/internal/metrics"
	"lamed/internal/storage"
	"lamed/internal/tracker"
)

const description = `lamed is an A/B testing backend. It counts participate and goal
events per experiment variant exactly once per event uuid, and reports
trial/success pairs per goal.`

// app holds the components built from configuration for one command.
type app struct {
	storage *storage.RedisStorage
	service *tracker.Service
	handler *handler.Handler
	closers []io.Closer
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}
}

func setup(c *cli.Context, m *metrics.Metrics) (*app, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	l, logCloser, err := logger.Init(cfg.Log)
	if err != nil {
		return nil, err
	}
	a := &app{closers: []io.Closer{logCloser}}

	store, err := storage.NewRedisStorage(c.Context, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.storage = store
	a.closers = append(a.closers, store)

	a.service = tracker.NewService(store.Client(), tracker.Config{
		DefaultNamespace: cfg.DefaultNamespace,
		Logger:           l,
		Metrics:          m,
		CounterOptions: []counter.Option{
			counter.WithExpiry(cfg.UUIDExpiry()),
			counter.WithRetry(cfg.Retry.MaxAttempts, cfg.Retry.InitialInterval, cfg.Retry.MaxInterval),
		},
	})
	a.handler = handler.New(a.service, l)
	return a, nil
}

// commands builds the command tree around collectors shared by every command.
type commands struct {
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
}

// withApp builds the components, runs fn and releases them. The collectors
// are written to --metrics-file afterwards, whether or not fn failed.
func (cmds commands) withApp(fn func(ctx context.Context, a *app, c *cli.Context) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		err := cmds.run(c, fn)
		if path := c.String("metrics-file"); path != "" {
			if werr := prometheus.WriteToTextfile(path, cmds.gatherer); werr != nil && err == nil {
				err = fmt.Errorf("failed to write metrics: %w", werr)
			}
		}
		return err
	}
}

func (cmds commands) run(c *cli.Context, fn func(ctx context.Context, a *app, c *cli.Context) error) error {
	a, err := setup(c, cmds.metrics)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(c.Context, a, c)
}

func printJSON(w io.Writer, v any) error {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func namespaceFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "namespace",
		Usage: "key namespace (defaults to the configured namespace)",
	}
}

func experimentFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "experiment",
		Aliases:  []string{"e"},
		Usage:    "experiment name",
		Required: true,
	}
}

func (cmds commands) trackCMD() *cli.Command {
	return &cli.Command{
		Name:  "track",
		Usage: "record a participate or goal event",
		Flags: []cli.Flag{
			namespaceFlag(),
			experimentFlag(),
			&cli.StringFlag{Name: "variant", Required: true},
			&cli.StringFlag{Name: "event", Value: core.ParticipateEvent, Usage: "participate or a goal name"},
			&cli.StringFlag{Name: "uuid", Value: "auto", Usage: "unique event id; auto generates one"},
		},
		Action: cmds.withApp(func(ctx context.Context, a *app, c *cli.Context) error {
			id := c.String("uuid")
			if id == "auto" {
				id = uuid.NewString()
			}
			return a.service.Track(ctx, core.TrackRequest{
				Namespace:  c.String("namespace"),
				Experiment: c.String("experiment"),
				UUID:       id,
				Variant:    c.String("variant"),
				Event:      c.String("event"),
			})
		}),
	}
}

func (cmds commands) experimentCMD() *cli.Command {
	return &cli.Command{
		Name:  "experiment",
		Usage: "print the goal reports of one experiment",
		Flags: []cli.Flag{namespaceFlag(), experimentFlag()},
		Action: cmds.withApp(func(ctx context.Context, a *app, c *cli.Context) error {
			goals, err := a.service.Experiment(ctx, core.ExperimentRequest{
				Namespace:  c.String("namespace"),
				Experiment: c.String("experiment"),
			})
			if err != nil {
				return err
			}
			return printJSON(c.App.Writer, goals)
		}),
	}
}

func (cmds commands) allCMD() *cli.Command {
	return &cli.Command{
		Name:  "all",
		Usage: "print the goal reports of every experiment",
		Flags: []cli.Flag{
			namespaceFlag(),
			&cli.StringFlag{Name: "scope", Usage: "comma-separated experiment names"},
		},
		Action: cmds.withApp(func(ctx context.Context, a *app, c *cli.Context) error {
			all, err := a.service.All(ctx, core.AllRequest{
				Namespace: c.String("namespace"),
				Scope:     c.String("scope"),
			})
			if err != nil {
				return err
			}
			return printJSON(c.App.Writer, all.Records())
		}),
	}
}

func (cmds commands) deleteCMD() *cli.Command {
	return &cli.Command{
		Name:  "delete",
		Usage: "delete an experiment and all of its counters",
		Flags: []cli.Flag{namespaceFlag(), experimentFlag()},
		Action: cmds.withApp(func(ctx context.Context, a *app, c *cli.Context) error {
			return a.service.Delete(ctx, core.DeleteRequest{
				Namespace:  c.String("namespace"),
				Experiment: c.String("experiment"),
			})
		}),
	}
}

func (cmds commands) invokeCMD() *cli.Command {
	return &cli.Command{
		Name:      "invoke",
		Usage:     "run an operation on a JSON event read from --data or stdin",
		ArgsUsage: "<track|experiment|all|delete>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "JSON event"},
		},
		Action: cmds.withApp(func(ctx context.Context, a *app, c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit(fmt.Sprintf("expected one operation, one of %v", handler.Operations), 2)
			}
			payload := []byte(c.String("data"))
			if !c.IsSet("data") {
				var err error
				payload, err = io.ReadAll(c.App.Reader)
				if err != nil {
					return fmt.Errorf("failed to read event: %w", err)
				}
			}
			out, err := a.handler.Invoke(ctx, c.Args().First(), payload)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.App.Writer, string(out))
			return err
		}),
	}
}

func (cmds commands) pingCMD() *cli.Command {
	return &cli.Command{
		Name:  "ping",
		Usage: "check the backend connection",
		Action: cmds.withApp(func(ctx context.Context, a *app, c *cli.Context) error {
			if err := a.storage.Ping(ctx); err != nil {
				return err
			}
			_, err := fmt.Fprintln(c.App.Writer, "PONG")
			return err
		}),
	}
}

// newApp builds the CLI. m must be registered with g for --metrics-file to
// report it.
func newApp(m *metrics.Metrics, g prometheus.Gatherer) *cli.App {
	cmds := commands{metrics: m, gatherer: g}
	return &cli.App{
		Name:        "lamed",
		Usage:       "A/B testing event tracking backend",
		Description: description,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "YAML configuration file; missing files are ignored",
				EnvVars: []string{"LAMED_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "metrics-file",
				Usage:   "write Prometheus metrics in text format to this file after the command (node_exporter textfile collector)",
				EnvVars: []string{"LAMED_METRICS_FILE"},
			},
		},
		Commands: []*cli.Command{
			cmds.trackCMD(),
			cmds.experimentCMD(),
			cmds.allCMD(),
			cmds.deleteCMD(),
			cmds.invokeCMD(),
			cmds.pingCMD(),
		},
	}
}

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Error loading .env file")
	}

	reg := prometheus.NewRegistry()
	if err := newApp(metrics.New(reg), reg).Run(os.Args); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
