// Package quicksight implements the sales analytics pipeline on AWS.
// It provisions, in order, the data access role, the S3 bucket, the
// Glue crawler, the SPICE dataset, the analysis, the dashboard, and
// finally an embed URL for the published dashboard.
package quicksight

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pkg_aws "github.com/aws/aws-quicksight-tester/pkg/aws"
	aws_iam "github.com/aws/aws-quicksight-tester/pkg/aws/iam"
	aws_s3 "github.com/aws/aws-quicksight-tester/pkg/aws/s3"
	"github.com/aws/aws-quicksight-tester/pkg/logutil"
	"github.com/aws/aws-quicksight-tester/pkg/timeutil"
	"github.com/aws/aws-quicksight-tester/qsconfig"
	"github.com/aws/aws-quicksight-tester/quicksight/analysis"
	"github.com/aws/aws-quicksight-tester/quicksight/crawler"
	"github.com/aws/aws-quicksight-tester/quicksight/dashboard"
	"github.com/aws/aws-quicksight-tester/quicksight/dataset"
	"github.com/aws/aws-quicksight-tester/quicksight/embed"
	qs_tester "github.com/aws/aws-quicksight-tester/quicksight/tester"
	"github.com/aws/aws-quicksight-tester/version"
	aws_v2 "github.com/aws/aws-sdk-go-v2/aws"
	aws_glue_v2 "github.com/aws/aws-sdk-go-v2/service/glue"
	aws_iam_v2 "github.com/aws/aws-sdk-go-v2/service/iam"
	aws_quicksight_v2 "github.com/aws/aws-sdk-go-v2/service/quicksight"
	aws_s3_v2 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// QuickSightAPI is the union of the QuickSight calls the sub-testers
// make. *quicksight.Client satisfies it.
type QuickSightAPI interface {
	dataset.QuickSightAPI
	analysis.QuickSightAPI
	dashboard.QuickSightAPI
	embed.QuickSightAPI
}

// Tester provisions and tears down the whole pipeline.
type Tester struct {
	cfg *qsconfig.Config
	lg  *zap.Logger

	stopCreationCh     chan struct{}
	stopCreationChOnce *sync.Once

	iamAPI aws_iam.API
	s3API  aws_s3.API

	glueAPI crawler.GlueAPI
	qsAPI   QuickSightAPI

	testers []qs_tester.Tester

	registry    *prometheus.Registry
	stepSuccess *prometheus.GaugeVec
	stepLatency *prometheus.HistogramVec
}

// New creates a new pipeline tester. It loads an AWS session, resolves
// the caller identity, and wires up all sub-testers.
func New(cfg *qsconfig.Config) (*Tester, error) {
	if err := cfg.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	lg, err := logutil.New(cfg.LogLevel, cfg.LogOutputs)
	if err != nil {
		return nil, err
	}

	lg.Info("creating tester",
		zap.String("name", cfg.Name),
		zap.String("release-version", version.ReleaseVersion),
		zap.String("git-commit", version.GitCommit),
	)

	awsCfg, stsOutput, err := pkg_aws.New(&pkg_aws.Config{
		Logger:        lg,
		DebugAPICalls: cfg.DebugAPICalls,
		Partition:     cfg.Partition,
		Region:        cfg.Region,
		ResolverURL:   cfg.ResolverURL,
		SigningName:   cfg.SigningName,
	})
	if err != nil {
		return nil, err
	}
	if cfg.AWSAccountID == "" {
		cfg.AWSAccountID = aws_v2.ToString(stsOutput.Account)
	}
	cfg.Status.AWSCallerARN = aws_v2.ToString(stsOutput.Arn)
	if err = cfg.Sync(); err != nil {
		return nil, err
	}

	return newTester(
		cfg,
		lg,
		aws_iam_v2.NewFromConfig(awsCfg),
		aws_s3_v2.NewFromConfig(awsCfg),
		aws_glue_v2.NewFromConfig(awsCfg),
		aws_quicksight_v2.NewFromConfig(awsCfg),
	), nil
}

// newTester wires up the metrics and the sub-testers against the given
// service clients.
func newTester(
	cfg *qsconfig.Config,
	lg *zap.Logger,
	iamAPI aws_iam.API,
	s3API aws_s3.API,
	glueAPI crawler.GlueAPI,
	qsAPI QuickSightAPI,
) *Tester {
	ts := &Tester{
		cfg: cfg,
		lg:  lg,

		stopCreationCh:     make(chan struct{}),
		stopCreationChOnce: new(sync.Once),

		iamAPI:  iamAPI,
		s3API:   s3API,
		glueAPI: glueAPI,
		qsAPI:   qsAPI,
	}

	ts.registry = prometheus.NewRegistry()
	ts.stepSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "aws_quicksight_tester",
		Subsystem: "pipeline",
		Name:      "step_success",
		Help:      "1 if the step completed, 0 if it failed.",
	}, []string{"step"})
	ts.stepLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aws_quicksight_tester",
		Subsystem: "pipeline",
		Name:      "step_latency_seconds",
		Help:      "Wall clock seconds per pipeline step.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"step"})
	ts.registry.MustRegister(ts.stepSuccess, ts.stepLatency)

	ts.testers = []qs_tester.Tester{
		crawler.New(crawler.Config{
			Logger:   lg,
			Stopc:    ts.stopCreationCh,
			QSConfig: cfg,
			GlueAPI:  ts.glueAPI,
		}),
		dataset.New(dataset.Config{
			Logger:   lg,
			Stopc:    ts.stopCreationCh,
			QSConfig: cfg,
			QSAPI:    ts.qsAPI,
		}),
		analysis.New(analysis.Config{
			Logger:   lg,
			Stopc:    ts.stopCreationCh,
			QSConfig: cfg,
			QSAPI:    ts.qsAPI,
		}),
		dashboard.New(dashboard.Config{
			Logger:   lg,
			Stopc:    ts.stopCreationCh,
			QSConfig: cfg,
			QSAPI:    ts.qsAPI,
		}),
		embed.New(embed.Config{
			Logger:   lg,
			Stopc:    ts.stopCreationCh,
			QSConfig: cfg,
			QSAPI:    ts.qsAPI,
		}),
	}

	return ts
}

// Logger returns the shared logger.
func (ts *Tester) Logger() *zap.Logger { return ts.lg }

// Stop aborts any in-flight creation wait loop. Safe to call more
// than once.
func (ts *Tester) Stop() {
	ts.stopCreationChOnce.Do(func() { close(ts.stopCreationCh) })
}

func (ts *Tester) runStep(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	ts.stepLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		ts.stepSuccess.WithLabelValues(name).Set(0)
		ts.lg.Warn("step failed", zap.String("step", name), zap.Error(err))
		return fmt.Errorf("step %q failed (%v)", name, err)
	}
	ts.stepSuccess.WithLabelValues(name).Set(1)
	ts.lg.Info("step complete", zap.String("step", name))
	return nil
}

// Up provisions the whole pipeline in order. When OnFailureDelete is
// set, a failed run tears down whatever it had created.
func (ts *Tester) Up() (err error) {
	defer func() {
		if err == nil {
			ts.lg.Info("Up complete",
				zap.String("name", ts.cfg.Name),
				zap.String("dashboard-arn", ts.cfg.Status.DashboardARN),
			)
			ts.gatherMetrics()
			return
		}
		ts.lg.Warn("Up failed", zap.String("name", ts.cfg.Name), zap.Error(err))
		ts.gatherMetrics()
		if ts.cfg.OnFailureDelete {
			ts.lg.Warn("reverting resource creation")
			if derr := ts.Down(); derr != nil {
				ts.lg.Warn("failed to revert", zap.Error(derr))
			}
		}
	}()

	if err = ts.runStep("role", ts.createRole); err != nil {
		return err
	}
	if err = ts.runStep("bucket", ts.createBucket); err != nil {
		return err
	}
	for _, sub := range ts.testers {
		select {
		case <-ts.stopCreationCh:
			return errors.New("stopped")
		default:
		}
		if err = ts.runStep(sub.Name(), sub.Create); err != nil {
			return err
		}
	}
	return nil
}

// Down deletes everything Up created, in reverse order. It keeps going
// past individual failures and reports them all at the end.
func (ts *Tester) Down() error {
	ts.lg.Info("starting Down", zap.String("name", ts.cfg.Name))

	var errs []string
	for i := len(ts.testers) - 1; i >= 0; i-- {
		sub := ts.testers[i]
		if err := sub.Delete(); err != nil {
			ts.lg.Warn("failed to delete", zap.String("tester", sub.Name()), zap.Error(err))
			errs = append(errs, err.Error())
		}
	}
	if err := ts.deleteBucket(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := ts.deleteRole(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, ", "))
	}
	ts.lg.Info("Down complete", zap.String("name", ts.cfg.Name))
	return nil
}

func (ts *Tester) createRole() error {
	createStart := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	policyARN, err := aws_iam.EnsurePolicy(
		ctx,
		ts.lg,
		ts.iamAPI,
		ts.cfg.Partition,
		ts.cfg.AWSAccountID,
		ts.cfg.PolicyName,
		aws_iam.NewDataAccessPolicy(ts.cfg.Partition, ts.cfg.S3Bucket),
	)
	if err != nil {
		return err
	}
	ts.cfg.Status.PolicyARN = policyARN

	roleARN, err := aws_iam.EnsureRole(
		ctx,
		ts.lg,
		ts.iamAPI,
		ts.cfg.RoleName,
		aws_iam.NewAssumeRolePolicyDocument("glue.amazonaws.com", "quicksight.amazonaws.com"),
	)
	if err != nil {
		return err
	}
	ts.cfg.Status.RoleARN = roleARN

	if err = aws_iam.AttachRolePolicy(ctx, ts.lg, ts.iamAPI, ts.cfg.RoleName, policyARN); err != nil {
		return err
	}

	ts.cfg.Status.RoleCreated = true
	ts.cfg.Status.TimeFrameRole = timeutil.NewTimeFrame(createStart, time.Now())
	return ts.cfg.Sync()
}

func (ts *Tester) deleteRole() error {
	if !ts.cfg.Status.RoleCreated {
		ts.lg.Info("role was not created, skipping delete")
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := aws_iam.DeleteRole(ctx, ts.lg, ts.iamAPI, ts.cfg.RoleName, ts.cfg.Status.PolicyARN); err != nil {
		return err
	}
	ts.cfg.Status.RoleCreated = false
	ts.cfg.Status.RoleARN = ""
	ts.cfg.Status.PolicyARN = ""
	return ts.cfg.Sync()
}

// seedCSV is a minimal sales file so a first crawl can infer the schema.
var seedCSV = []byte(`sale_date,product_id,quantity,revenue
2024-01-01,P-1001,3,59.97
2024-01-01,P-1002,1,249.00
2024-01-02,P-1001,2,39.98
2024-01-02,P-1003,5,74.50
2024-01-03,P-1002,2,498.00
`)

func (ts *Tester) createBucket() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := aws_s3.EnsureBucket(ctx, ts.lg, ts.s3API, ts.cfg.S3Bucket, ts.cfg.Region); err != nil {
		return err
	}
	if ts.cfg.SeedData {
		key := ts.cfg.S3DataPrefix + "sales.csv"
		if err := aws_s3.UploadBody(ctx, ts.lg, ts.s3API, ts.cfg.S3Bucket, key, seedCSV); err != nil {
			return err
		}
	}
	ts.cfg.Status.BucketCreated = true
	return ts.cfg.Sync()
}

func (ts *Tester) deleteBucket() error {
	if !ts.cfg.Status.BucketCreated {
		ts.lg.Info("bucket was not created, skipping delete")
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := aws_s3.EmptyBucket(ctx, ts.lg, ts.s3API, ts.cfg.S3Bucket); err != nil {
		return err
	}
	if err := aws_s3.DeleteBucket(ctx, ts.lg, ts.s3API, ts.cfg.S3Bucket); err != nil {
		return err
	}
	ts.cfg.Status.BucketCreated = false
	return ts.cfg.Sync()
}

// EmbedURL returns a fresh embed URL for the published dashboard.
// Unlike the pipeline step, this does not persist the URL.
func (ts *Tester) EmbedURL() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return embed.GetURL(ctx, ts.lg, ts.qsAPI, ts.cfg)
}

func (ts *Tester) gatherMetrics() {
	mfs, err := ts.registry.Gather()
	if err != nil {
		ts.lg.Warn("failed to gather metrics", zap.Error(err))
		return
	}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			fields := []zap.Field{zap.String("name", mf.GetName())}
			for _, lp := range m.GetLabel() {
				fields = append(fields, zap.String(lp.GetName(), lp.GetValue()))
			}
			switch {
			case m.GetGauge() != nil:
				fields = append(fields, zap.Float64("value", m.GetGauge().GetValue()))
			case m.GetHistogram() != nil:
				fields = append(fields, zap.Float64("sum", m.GetHistogram().GetSampleSum()))
			}
			ts.lg.Info("metric", fields...)
		}
	}
}
