package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/caniparkhere/caniparkhere/apps/api/internal/platform/backend"
	"github.com/caniparkhere/caniparkhere/apps/api/internal/platform/config"
	firestoreclient "github.com/caniparkhere/caniparkhere/apps/api/internal/platform/firestore"
	"github.com/caniparkhere/caniparkhere/apps/api/internal/platform/logging"
	"github.com/spf13/cobra"
)

var (
	timeout  time.Duration
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:           "parkctl",
	Short:         "Inspect CanIParkHere users, parking history and backend wiring",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(logLevel, config.EnvDevelopment)
	},
}

func init() {
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "overall command timeout")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

// openFirestore loads the full service config and connects to Firestore.
func openFirestore(ctx context.Context) (*firestore.Client, config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("config load: %w", err)
	}
	client, _, err := firestoreclient.New(ctx, cfg)
	if err != nil {
		return nil, config.Config{}, err
	}
	return client, cfg, nil
}

func newBackend() (*backend.Client, error) {
	bc, err := config.LoadBackend()
	if err != nil {
		return nil, err
	}
	paths, err := backend.NewPaths(bc.APIPrefix, bc.PathOverrides)
	if err != nil {
		return nil, err
	}
	return backend.New(nil, backend.Config{BaseURL: bc.BaseURL, Paths: paths, Timeout: bc.Timeout}), nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
