package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/adpulse/internal/ads"
	"github.com/ignite/adpulse/internal/anomaly"
	"github.com/ignite/adpulse/internal/burnout"
	"github.com/ignite/adpulse/internal/config"
	"github.com/ignite/adpulse/internal/domain"
	"github.com/ignite/adpulse/internal/entitysync"
	"github.com/ignite/adpulse/internal/features"
	"github.com/ignite/adpulse/internal/normalize"
	"github.com/ignite/adpulse/internal/pkg/logger"
	"github.com/ignite/adpulse/internal/report"
	"github.com/ignite/adpulse/internal/repository/postgres"
	"github.com/ignite/adpulse/internal/worker"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to config file")
		workers    = flag.Int("workers", 0, "worker count override")
		limit      = flag.Int("limit", 0, "process at most N accounts")
		resume     = flag.String("resume", "", "resume a job by id, or 'latest'")
		dryRun     = flag.Bool("dry-run", false, "plan the run without calling the ads platform")
		skipSteps  = flag.String("skip-steps", "", "comma-separated steps to skip")
		skipDaily  = flag.Bool("skip-daily", false, "skip the daily enrichment step")
		pauseSecs  = flag.Int("pause", 0, "inter-account pause override in seconds")
		pauseJob   = flag.String("pause-job", "", "pause a running job by id and exit")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *verbose {
		logger.SetLevel(logger.DEBUG)
	}

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *workers > 0 {
		cfg.Pipeline.Workers = *workers
	}
	if *limit > 0 {
		cfg.Pipeline.AccountLimit = *limit
	}
	if *pauseSecs > 0 {
		cfg.Pipeline.InterAccountPauseSecs = *pauseSecs
	}

	db, err := postgres.Open(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	postgres.EnsureSchema(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobRepo := postgres.NewJobRepo(db)
	tracker := worker.NewTracker(jobRepo)

	if *pauseJob != "" {
		if err := tracker.Pause(ctx, *pauseJob); err != nil {
			fmt.Fprintf(os.Stderr, "pause: %v\n", err)
			os.Exit(1)
		}
		logger.Info("pause requested", "job_id", *pauseJob)
		return
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled && cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "redis: %v\n", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, group backoff is process-local", "error", err.Error())
			redisClient = nil
		}
	}

	entityRepo := postgres.NewEntityRepo(db)
	metricsRepo := postgres.NewMetricsRepo(db)
	resultRepo := postgres.NewResultRepo(db)
	anomalyRepo := postgres.NewAnomalyRepo(db)

	client := ads.NewClient(cfg.AdsPlatform)
	runner := ads.NewRunner(client, cfg.AdsPlatform.PollInterval(), cfg.AdsPlatform.ReportPollAttempts)

	syncSvc := entitysync.New(client, runner, entityRepo, metricsRepo,
		cfg.Pipeline.LookbackWeeks, cfg.Pipeline.DailyLookbackDays)
	normalizeSvc := normalize.New(struct {
		*postgres.MetricsRepo
		*postgres.EntityRepo
	}{metricsRepo, entityRepo}, resultRepo, cfg.Mapping)
	featureSvc := features.New(struct {
		*postgres.ResultRepo
		*postgres.MetricsRepo
	}{resultRepo, metricsRepo}, resultRepo,
		features.NewComputer(cfg.Anomaly.BaselineWeeks, cfg.Anomaly.MinResults))
	anomalySvc := anomaly.New(resultRepo, anomalyRepo,
		anomaly.NewDetector(cfg.Anomaly.CPRSpikeThreshold, cfg.Anomaly.TriggerThresholds, cfg.Anomaly.BaselineWeeks))
	burnoutSvc := burnout.New(resultRepo, anomalyRepo,
		burnout.NewPredictor(cfg.Burnout.GrowthEventRatio, cfg.Burnout.MinAdEvents,
			cfg.Burnout.MinAccountEvents, cfg.Burnout.MinGlobalEvents, cfg.Burnout.FallbackElasticity))

	since := entitysync.WeekStart(time.Now().UTC()).AddDate(0, 0, -7*cfg.Pipeline.LookbackWeeks)

	stepRunner := worker.NewStepRunner(worker.StepRunnerConfig{
		Tracker:      tracker,
		Store:        jobRepo,
		Backoff:      worker.NewGroupBackoff(redisClient),
		Sync:         syncSvc,
		Normalize:    normalizeSvc.NormalizeAccount,
		Features:     featureSvc.ComputeAccount,
		Anomalies:    anomalySvc.DetectAccount,
		Burnout:      burnoutSvc.PredictAccount,
		MaxAttempts:  cfg.Pipeline.MaxStepAttempts,
		RetrySpacing: cfg.Pipeline.RetrySpacing(),
		GroupBackoff: cfg.Pipeline.GroupBackoff(),
		Since:        since,
	})

	pool := worker.NewPool(tracker, stepRunner, cfg.Pipeline.Workers, cfg.Pipeline.InterAccountPause())
	scheduler := worker.NewScheduler(entityRepo, tracker, pool)

	var job *domain.JobRun
	if *resume != "" {
		jobID := *resume
		if jobID == "latest" {
			jobID = ""
		}
		job, err = scheduler.Resume(ctx, jobID)
	} else {
		job, err = scheduler.Run(ctx, domain.JobParams{
			Workers:           cfg.Pipeline.Workers,
			AccountLimit:      cfg.Pipeline.AccountLimit,
			DryRun:            *dryRun,
			SkipSteps:         parseSkipSteps(*skipSteps, *skipDaily),
			InterAccountPause: cfg.Pipeline.InterAccountPauseSecs,
			LookbackWeeks:     cfg.Pipeline.LookbackWeeks,
		})
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "pipeline: %v\n", err)
		os.Exit(1)
	}

	writeReport(ctx, cfg, jobRepo, anomalyRepo, job, since)

	logger.Info("pipeline finished",
		"job_id", job.ID,
		"status", string(job.Status),
		"processed", job.ProcessedAccounts,
		"failed", job.FailedAccounts,
		"skipped", job.SkippedAccounts,
	)
}

// writeReport renders the job summary. Report trouble never fails the run;
// the pipeline's results are already in the database.
func writeReport(ctx context.Context, cfg *config.Config, jobs *postgres.JobRepo, anomalies *postgres.AnomalyRepo, job *domain.JobRun, since time.Time) {
	var archiver report.Archiver
	if cfg.Reports.S3Bucket != "" {
		s3arch, err := report.NewS3Archiver(ctx, cfg.Reports.S3Bucket, cfg.Reports.AWSRegion, cfg.Reports.GetAWSProfile())
		if err != nil {
			logger.Warn("s3 archiver unavailable", "error", err.Error())
		} else {
			archiver = s3arch
		}
	}

	builder := report.NewBuilder(jobs, anomalies, archiver, cfg.Reports.OutputDir, since)
	doc, err := builder.Build(ctx, job.ID)
	if err != nil {
		logger.Warn("report build failed", "job_id", job.ID, "error", err.Error())
		return
	}
	if _, err := builder.Write(ctx, doc); err != nil {
		logger.Warn("report write failed", "job_id", job.ID, "error", err.Error())
	}
}

func parseSkipSteps(csv string, skipDaily bool) []domain.Step {
	var steps []domain.Step
	for _, raw := range strings.Split(csv, ",") {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		steps = append(steps, domain.Step(name))
	}
	if skipDaily {
		steps = append(steps, domain.StepDaily)
	}
	return steps
}
