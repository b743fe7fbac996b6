package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wpinspect/wpinspect/internal/analyzer"
	"github.com/wpinspect/wpinspect/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run wpinspect as a REST API service",
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		addr, _ := cmd.Flags().GetString("addr")
		authToken, _ := cmd.Flags().GetString("auth-token")
		shutdownTimeout, _ := cmd.Flags().GetDuration("shutdown-timeout")
		analyzeTimeout, _ := cmd.Flags().GetDuration("analyze-timeout")
		corsOrigins, _ := cmd.Flags().GetStringSlice("cors-origins")
		rateLimit, _ := cmd.Flags().GetInt("rate-limit")
		rateBurst, _ := cmd.Flags().GetInt("rate-burst")

		logger := appCtx.ZapLogger.Named("api")
		p, err := newPipeline(appCtx.Config, logger)
		if err != nil {
			return err
		}
		defer p.Close()

		jobManager := api.NewJobManager(&analyzer.BatchRunner{
			Analyzer:    p.Analyzer,
			Concurrency: appCtx.Config.Batch.Concurrency,
			Delay:       appCtx.Config.Batch.Delay,
			Logger:      logger,
		}, logger)
		defer jobManager.Close()

		server := api.NewServer(api.Config{
			Analyzer:       p.Analyzer,
			Jobs:           jobManager,
			AuthToken:      authToken,
			Logger:         logger,
			CORSOrigins:    corsOrigins,
			RateLimit:      rateLimit,
			RateBurst:      rateBurst,
			AnalyzeTimeout: analyzeTimeout,
		})
		defer server.Close()

		httpServer := &http.Server{
			Addr:              addr,
			Handler:           server,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			// Synchronous analyses and the job stream outlive a short write timeout.
			WriteTimeout: 0,
			IdleTimeout:  120 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			fmt.Printf("%s API server listening on %s\n", colorInfo("→"), addr)
			fmt.Printf("%s Press Ctrl+C to gracefully shutdown\n", colorInfo("→"))
			serverErrors <- httpServer.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
		case sig := <-shutdown:
			fmt.Printf("\n%s Received signal %v, initiating graceful shutdown...\n", colorInfo("→"), sig)

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(ctx); err != nil {
				if closeErr := httpServer.Close(); closeErr != nil {
					return fmt.Errorf("failed to gracefully shutdown server: %w (close error: %v)", err, closeErr)
				}
				return fmt.Errorf("failed to gracefully shutdown server: %w", err)
			}
			fmt.Printf("%s Server shutdown complete\n", colorSuccess("✓"))
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Address for the API server")
	serveCmd.Flags().String("auth-token", "", "Optional shared secret for API requests (X-Auth-Token or Bearer)")
	serveCmd.Flags().Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")
	serveCmd.Flags().Duration("analyze-timeout", 2*time.Minute, "Upper bound for a synchronous analysis (0 = none)")
	serveCmd.Flags().StringSlice("cors-origins", []string{}, "Allowed CORS origins (empty = allow all)")
	serveCmd.Flags().Int("rate-limit", 10, "Rate limit per IP (requests/second, 0 = disabled)")
	serveCmd.Flags().Int("rate-burst", 20, "Rate limit burst size")
	serveCmd.Flags().IntVar(&cliConfig.Batch.Concurrency, "concurrency", cliConfig.Batch.Concurrency, "sites analyzed per batch job step")
}
