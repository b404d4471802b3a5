package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/varikb/varikb/engine/domain"
	"github.com/varikb/varikb/engine/graph"
	"github.com/varikb/varikb/engine/query"
	"github.com/varikb/varikb/engine/transform"
	"github.com/varikb/varikb/pkg/metrics"
	"github.com/varikb/varikb/pkg/natsutil"
)

var (
	harvestPath string
	bundlePath  string
	loadPath    string
)

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Transform a harvested record set into a canonical bundle",
	RunE: func(cmd *cobra.Command, _ []string) error {
		log := newLogger()
		tr, err := newTransformer(log)
		if err != nil {
			return err
		}

		harvest, err := transform.ReadHarvest(harvestPath)
		if err != nil {
			return err
		}
		data, err := tr.Transform(cmd.Context(), harvest)
		if err != nil {
			return err
		}
		if err := transform.WriteBundle(bundlePath, data); err != nil {
			return err
		}
		log.Info("bundle written", "path", bundlePath,
			"evidence", len(data.StatementsEvidence),
			"assertions", len(data.StatementsAssertions))
		return nil
	},
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load a canonical bundle into the graph",
	RunE: func(cmd *cobra.Command, _ []string) error {
		log := newLogger()
		driver, err := newDriver()
		if err != nil {
			return fmt.Errorf("connect neo4j: %w", err)
		}
		defer driver.Close(cmd.Context())

		data, err := transform.ReadBundle(loadPath)
		if err != nil {
			return err
		}
		store := graph.New(driver, log)
		if err := store.AddTransformedData(cmd.Context(), data); err != nil {
			return err
		}
		nodes, rels, err := store.Counts(cmd.Context())
		if err != nil {
			return err
		}
		log.Info("bundle loaded", "path", loadPath, "nodes", nodes, "relationships", rels)
		return nil
	},
}

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Consume harvest messages from NATS and publish canonical bundles",
	RunE: func(cmd *cobra.Command, _ []string) error {
		log := newLogger()
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		tr, err := newTransformer(log)
		if err != nil {
			return err
		}
		nc, err := nats.Connect(viper.GetString("nats_url"))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Close()

		reg := metrics.New()
		sub, err := transform.StartConsumer(nc, tr, log, reg, transform.DefaultConsumerOpts)
		if err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
		defer sub.Drain()

		mux := http.NewServeMux()
		mux.Handle("GET /metrics", reg.Handler())
		mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		srv := &http.Server{Addr: ":" + viper.GetString("port"), Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server exited", "error", err)
			}
		}()

		log.Info("consumer running", "subject", transform.DefaultConsumerOpts.Subject)
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

var sinkCmd = &cobra.Command{
	Use:   "sink",
	Short: "Consume canonical bundles from NATS and load them into the graph",
	RunE: func(cmd *cobra.Command, _ []string) error {
		log := newLogger()
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		driver, err := newDriver()
		if err != nil {
			return fmt.Errorf("connect neo4j: %w", err)
		}
		defer driver.Close(context.Background())
		store := graph.New(driver, log)

		nc, err := nats.Connect(viper.GetString("nats_url"))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Close()

		subject := transform.DefaultConsumerOpts.OutSubject
		sub, err := natsutil.Subscribe(nc, subject, func(ctx context.Context, data domain.TransformedData) {
			if err := store.AddTransformedData(ctx, &data); err != nil {
				log.Error("load bundle", "error", err)
				return
			}
			log.Info("bundle loaded",
				"evidence", len(data.StatementsEvidence),
				"assertions", len(data.StatementsAssertions))
		})
		if err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
		defer sub.Drain()

		log.Info("sink running", "subject", subject)
		<-ctx.Done()
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the statement search API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		log := newLogger()
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		driver, err := newDriver()
		if err != nil {
			return fmt.Errorf("connect neo4j: %w", err)
		}
		defer driver.Close(context.Background())

		store := graph.New(driver, log)
		svc := query.NewService(store, log, newNormalizers()...)
		server := query.NewServer(svc, log, metrics.New())

		srv := &http.Server{
			Addr:              ":" + viper.GetString("port"),
			Handler:           server.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() {
			log.Info("search API listening", "addr", srv.Addr)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	transformCmd.Flags().StringVarP(&harvestPath, "input", "i", "harvest.json", "harvest JSON file")
	transformCmd.Flags().StringVarP(&bundlePath, "output", "o", "bundle.json", "bundle JSON output file")
	loadCmd.Flags().StringVarP(&loadPath, "input", "i", "bundle.json", "bundle JSON file")
}
