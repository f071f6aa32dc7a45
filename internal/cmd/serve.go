package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atmoslabs/simbatch/internal/config"
	"github.com/atmoslabs/simbatch/internal/observability"
	"github.com/atmoslabs/simbatch/internal/server"
	"github.com/atmoslabs/simbatch/internal/server/handlers"
	"github.com/atmoslabs/simbatch/pkg/audit"
	"github.com/atmoslabs/simbatch/pkg/catalog"
	"github.com/atmoslabs/simbatch/pkg/compute/awsbatch"
	"github.com/atmoslabs/simbatch/pkg/jobstore"
	"github.com/atmoslabs/simbatch/pkg/orchestrator"
	"github.com/atmoslabs/simbatch/pkg/pricing"
	s3sink "github.com/atmoslabs/simbatch/pkg/resultsink/s3"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestrator API server",
	Long: `Start the HTTP API, resume monitoring for jobs that were active when
the previous process stopped, and serve until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := observability.InitServer(cfg.LogLevel); err != nil {
		return err
	}
	defer observability.Sync()
	log := observability.ServerLogger

	db, err := jobstore.Open(ctx, jobstore.Config{
		Path:      cfg.Store.Path,
		URL:       cfg.Store.URL,
		AuthToken: cfg.Store.AuthToken,
	})
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer func() { _ = db.Close() }()
	if err := jobstore.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate job store: %w", err)
	}
	store := jobstore.New(db)

	backend, err := awsbatch.New(ctx, awsbatch.Config{
		Region:        cfg.Batch.Region,
		Profile:       cfg.Batch.Profile,
		JobDefinition: cfg.Batch.JobDefinition,
		JobNamePrefix: cfg.Batch.JobNamePrefix,
	})
	if err != nil {
		return fmt.Errorf("batch backend: %w", err)
	}

	sink, err := s3sink.New(ctx, s3sink.Config{
		Bucket:   cfg.Results.Bucket,
		Prefix:   cfg.Results.Prefix,
		Region:   cfg.Results.Region,
		Endpoint: cfg.Results.Endpoint,
	})
	if err != nil {
		return fmt.Errorf("result sink: %w", err)
	}

	opts := orchestrator.Options{
		Logger: log,
	}

	quota := quotaFromConfig(cfg)
	opts.Quota = &quota

	prices := pricing.Default()
	if cfg.Pricing.TablePath != "" {
		prices, err = pricing.LoadFile(cfg.Pricing.TablePath)
		if err != nil {
			return fmt.Errorf("load price table: %w", err)
		}
	}
	opts.Prices = &prices

	var auditFile *os.File
	if cfg.Orchestrator.AuditLogPath != "" {
		auditFile, err = os.OpenFile(cfg.Orchestrator.AuditLogPath,
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		defer func() { _ = auditFile.Close() }()
		opts.Audit = audit.NewLog(auditFile)
	}

	orch := orchestrator.New(store, backend, sink, orchestratorConfig(cfg), opts)
	defer orch.Shutdown()

	if err := orch.Resume(ctx); err != nil {
		return fmt.Errorf("resume active jobs: %w", err)
	}

	health := handlers.NewHealthManager(versionInfo.Version)
	health.RegisterChecker("store", dbChecker{db})

	srv := server.New(cfg.Server.Host, cfg.Server.Port, orch, health, log)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.String("version", versionInfo.Version))
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown", zap.Error(err))
	}
	return nil
}

func orchestratorConfig(cfg *config.Config) orchestrator.Config {
	return orchestrator.Config{
		MaxAttempts:    cfg.Orchestrator.MaxAttempts,
		PollInitial:    cfg.Orchestrator.PollInitial,
		PollMax:        cfg.Orchestrator.PollMax,
		PollWidenAfter: cfg.Orchestrator.PollWidenAfter,
		PollFactor:     cfg.Orchestrator.PollFactor,
		ResubmitBase:   cfg.Orchestrator.ResubmitBase,
		ResubmitMax:    cfg.Orchestrator.ResubmitMax,
		AdapterTimeout: cfg.Orchestrator.AdapterTimeout,
		AdapterRetries: cfg.Orchestrator.AdapterRetries,
		DescribeRate:   cfg.Orchestrator.DescribeRate,
	}
}

func quotaFromConfig(cfg *config.Config) catalog.Quota {
	q := catalog.DefaultQuota()
	if cfg.Quota.MaxActiveJobs > 0 {
		q.MaxActiveJobs = cfg.Quota.MaxActiveJobs
	}
	if cfg.Quota.MaxSimulationDays > 0 {
		q.MaxSimulationDays = cfg.Quota.MaxSimulationDays
	}
	return q
}

// dbChecker adapts the store's sql handle to the health endpoint.
type dbChecker struct {
	db *sql.DB
}

func (c dbChecker) CheckHealth(ctx context.Context) error {
	return c.db.PingContext(ctx)
}
