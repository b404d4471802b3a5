// Package main implements the varikb command line: transform source
// harvests into canonical bundles, load bundles into Neo4j, run the NATS
// transform consumer and bundle sink, and serve the search API.
package main

import (
	"log/slog"
	"os"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/varikb/varikb/engine/normalize"
	"github.com/varikb/varikb/engine/transform"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "varikb",
	Short:         "Clinical-genomics knowledge graph pipeline",
	Long:          "varikb integrates variant evidence from multiple sources into one canonical Neo4j knowledge graph and serves concept-based statement searches over it.",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./varikb.yaml)")

	rootCmd.AddCommand(transformCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(consumeCmd)
	rootCmd.AddCommand(sinkCmd)
	rootCmd.AddCommand(serveCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("varikb")
	}

	viper.SetDefault("port", "8080")
	viper.SetDefault("workers", 8)
	viper.SetDefault("neo4j_url", "neo4j://localhost:7687")
	viper.SetDefault("neo4j_user", "neo4j")
	viper.SetDefault("neo4j_pass", "password")
	viper.SetDefault("nats_url", "nats://localhost:4222")
	viper.SetDefault("normalizer_url", "http://localhost:8000")

	viper.SetEnvPrefix("VARIKB")
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}

func newLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	return logger
}

func newDriver() (neo4j.DriverWithContext, error) {
	return neo4j.NewDriverWithContext(
		viper.GetString("neo4j_url"),
		neo4j.BasicAuth(viper.GetString("neo4j_user"), viper.GetString("neo4j_pass"), ""),
	)
}

// newNormalizers builds one client per concept kind against the shared
// normalization service base URL.
func newNormalizers() []normalize.Normalizer {
	base := viper.GetString("normalizer_url")
	kinds := []normalize.Kind{
		normalize.KindGene,
		normalize.KindDisease,
		normalize.KindTherapy,
		normalize.KindVariation,
	}
	clients := make([]normalize.Normalizer, 0, len(kinds))
	for _, k := range kinds {
		clients = append(clients, normalize.NewClient(k, base))
	}
	return clients
}

func newTransformer(log *slog.Logger) (*transform.Transformer, error) {
	return transform.New(log, viper.GetInt("workers"), newNormalizers()...)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
