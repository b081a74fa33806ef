package commands

import (
	"github.com/spf13/cobra"

	"github.com/ajosephmass/spendoptimo-agent/pkg/server"
)

func newServeCommand(version string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the SpendOptimo HTTP API",
		Long: `Run the HTTP API for batch execution and validation.

Endpoints:
  POST /v1/batches           execute a recommendation batch
  POST /v1/batches/validate  validate without executing
  GET  /v1/policies          active cost policies
  GET  /healthz              health
  GET  /metrics              Prometheus metrics`,
		Example: `  # Serve on the configured address
  spendoptimo serve

  # Override the listen address
  spendoptimo serve --addr :9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newApp(ctx, version)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			opts := server.Options{
				Addr:            app.cfg.Server.Addr,
				ReadTimeout:     app.cfg.Server.ReadTimeout.Std(),
				WriteTimeout:    app.cfg.Server.WriteTimeout.Std(),
				ShutdownTimeout: app.cfg.Server.ShutdownTimeout.Std(),
				Execution:       app.cfg.Engine.Options(),
			}
			if addr != "" {
				opts.Addr = addr
			}

			srv := server.New(app.engine, app.validator, app.planner, app.store,
				app.tel.Metrics, app.tel.Logger.Zerolog(), opts)
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")

	return cmd
}
