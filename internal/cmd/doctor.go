package cmd

import (
	"context"
	"fmt"
	"runtime"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atmoslabs/simbatch/internal/config"
	"github.com/atmoslabs/simbatch/internal/observability"
	"github.com/atmoslabs/simbatch/pkg/jobstore"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the environment and suggest fixes for
common issues.

Examples:
  simbatch doctor    # Check config, store, and AWS credentials`,
	Run: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, _ []string) {
	log := observability.CLILogger
	log.Info("=== simbatch doctor ===")
	log.Info("")

	allChecks := true
	checkNum := 1
	totalChecks := 4

	// Check 1: Go runtime
	goVersion := runtime.Version()
	log.Info(fmt.Sprintf("[%d/%d] Checking runtime... %s %s/%s",
		checkNum, totalChecks, goVersion, runtime.GOOS, runtime.GOARCH),
		zap.String("go_version", goVersion))
	checkNum++

	// Check 2: configuration
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking configuration... FAILED", checkNum, totalChecks),
			zap.Error(err))
		allChecks = false
	} else {
		log.Info(fmt.Sprintf("[%d/%d] Checking configuration... ok (server %s:%d)",
			checkNum, totalChecks, cfg.Server.Host, cfg.Server.Port))
	}
	checkNum++

	// Check 3: job store
	if cfg != nil {
		if err := checkStore(cmd.Context(), cfg); err != nil {
			log.Error(fmt.Sprintf("[%d/%d] Checking job store... FAILED", checkNum, totalChecks),
				zap.Error(err))
			allChecks = false
		} else {
			log.Info(fmt.Sprintf("[%d/%d] Checking job store... ok", checkNum, totalChecks),
				zap.String("path", cfg.Store.Path))
		}
	} else {
		log.Warn(fmt.Sprintf("[%d/%d] Checking job store... skipped (no config)", checkNum, totalChecks))
	}
	checkNum++

	// Check 4: AWS credentials
	if err := checkAWSCredentials(cmd.Context()); err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking AWS credentials... FAILED", checkNum, totalChecks),
			zap.Error(err))
		printAWSCredentialsHelp()
		allChecks = false
	} else {
		log.Info(fmt.Sprintf("[%d/%d] Checking AWS credentials... ok", checkNum, totalChecks))
	}

	log.Info("")
	if allChecks {
		log.Info("All checks passed. Your simbatch installation is healthy.")
	} else {
		log.Warn("Some checks failed. Review the output above for details.")
	}
	log.Info("=== End Diagnostics ===")
}

func checkStore(ctx context.Context, cfg *config.Config) error {
	db, err := jobstore.Open(ctx, jobstore.Config{
		Path:      cfg.Store.Path,
		URL:       cfg.Store.URL,
		AuthToken: cfg.Store.AuthToken,
	})
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return db.PingContext(ctx)
}

func checkAWSCredentials(ctx context.Context) error {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return err
	}
	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		return err
	}
	observability.CLILogger.Info("credentials found",
		zap.String("access_key", maskAccessKey(creds.AccessKeyID)),
		zap.String("source", creds.Source))
	return nil
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func printAWSCredentialsHelp() {
	log := observability.CLILogger
	log.Info("")
	log.Info("To configure AWS credentials:")
	log.Info("  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables, or")
	log.Info("  2. Run 'aws configure' to set up a profile, or")
	log.Info("  3. Use an IAM role when running on AWS infrastructure")
	log.Info("")
}
