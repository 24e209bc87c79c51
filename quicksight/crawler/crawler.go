// Package crawler implements the Glue crawler step of the pipeline.
// The crawler scans the sales data path on a schedule and keeps the
// catalog table schemas up to date.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"path"
	"reflect"
	"time"

	"github.com/aws/aws-quicksight-tester/pkg/timeutil"
	"github.com/aws/aws-quicksight-tester/qsconfig"
	qs_tester "github.com/aws/aws-quicksight-tester/quicksight/tester"
	aws_v2 "github.com/aws/aws-sdk-go-v2/aws"
	aws_glue_v2 "github.com/aws/aws-sdk-go-v2/service/glue"
	glue_types "github.com/aws/aws-sdk-go-v2/service/glue/types"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// GlueAPI is the subset of the Glue API used by this package.
type GlueAPI interface {
	CreateDatabase(ctx context.Context, input *aws_glue_v2.CreateDatabaseInput, optFns ...func(*aws_glue_v2.Options)) (*aws_glue_v2.CreateDatabaseOutput, error)
	CreateCrawler(ctx context.Context, input *aws_glue_v2.CreateCrawlerInput, optFns ...func(*aws_glue_v2.Options)) (*aws_glue_v2.CreateCrawlerOutput, error)
	StartCrawler(ctx context.Context, input *aws_glue_v2.StartCrawlerInput, optFns ...func(*aws_glue_v2.Options)) (*aws_glue_v2.StartCrawlerOutput, error)
	GetCrawler(ctx context.Context, input *aws_glue_v2.GetCrawlerInput, optFns ...func(*aws_glue_v2.Options)) (*aws_glue_v2.GetCrawlerOutput, error)
	DeleteCrawler(ctx context.Context, input *aws_glue_v2.DeleteCrawlerInput, optFns ...func(*aws_glue_v2.Options)) (*aws_glue_v2.DeleteCrawlerOutput, error)
}

// Config defines the crawler step configuration.
type Config struct {
	Logger   *zap.Logger
	Stopc    chan struct{}
	QSConfig *qsconfig.Config
	GlueAPI  GlueAPI
}

var pkgName = path.Base(reflect.TypeOf(tester{}).PkgPath())

// New creates a new crawler tester.
func New(cfg Config) qs_tester.Tester {
	cfg.Logger.Info("creating tester", zap.String("tester", pkgName))
	return &tester{cfg: cfg}
}

type tester struct {
	cfg Config
}

func (ts *tester) Name() string { return pkgName }

// BuildCreateCrawlerInput assembles the create-crawler request from the
// configuration. Exactly one S3 target path is set.
func BuildCreateCrawlerInput(cfg *qsconfig.Config) *aws_glue_v2.CreateCrawlerInput {
	role := cfg.Status.RoleARN
	if role == "" {
		role = cfg.RoleName
	}
	return &aws_glue_v2.CreateCrawlerInput{
		Name:         aws_v2.String(cfg.CrawlerName),
		Role:         aws_v2.String(role),
		DatabaseName: aws_v2.String(cfg.GlueDatabaseName),
		Targets: &glue_types.CrawlerTargets{
			S3Targets: []glue_types.S3Target{
				{Path: aws_v2.String(cfg.DataPath())},
			},
		},
		Schedule: aws_v2.String(cfg.CrawlerSchedule),
		Tags: map[string]string{
			"Kind": "aws-quicksight-tester",
			"Name": cfg.Name,
		},
	}
}

func (ts *tester) Create() (err error) {
	if ts.cfg.QSConfig.Status.CrawlerCreated {
		ts.cfg.Logger.Info("skipping tester.Create", zap.String("tester", pkgName))
		return nil
	}

	ts.cfg.Logger.Info("starting tester.Create", zap.String("tester", pkgName))
	createStart := time.Now()

	if err = ts.ensureDatabase(); err != nil {
		return err
	}
	if err = ts.createCrawler(); err != nil {
		return err
	}

	ts.cfg.QSConfig.Status.CrawlerCreated = true
	ts.cfg.QSConfig.Status.TimeFrameCrawler = timeutil.NewTimeFrame(createStart, time.Now())
	ts.cfg.QSConfig.Sync()

	if ts.cfg.QSConfig.CrawlerStart {
		if err = ts.startAndWait(); err != nil {
			return err
		}
	}
	return nil
}

func (ts *tester) ensureDatabase() error {
	name := ts.cfg.QSConfig.GlueDatabaseName
	ts.cfg.Logger.Info("creating catalog database", zap.String("database", name))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	_, err := ts.cfg.GlueAPI.CreateDatabase(ctx, &aws_glue_v2.CreateDatabaseInput{
		DatabaseInput: &glue_types.DatabaseInput{
			Name: aws_v2.String(name),
		},
	})
	cancel()
	if err != nil {
		var exists *glue_types.AlreadyExistsException
		if errors.As(err, &exists) {
			ts.cfg.Logger.Warn("catalog database already exists", zap.String("database", name))
			return nil
		}
		ts.cfg.Logger.Warn("failed to create catalog database", zap.String("database", name), zap.Error(err))
		return err
	}
	ts.cfg.Logger.Info("created catalog database", zap.String("database", name))
	return nil
}

func (ts *tester) createCrawler() error {
	input := BuildCreateCrawlerInput(ts.cfg.QSConfig)
	ts.cfg.Logger.Info("creating crawler",
		zap.String("crawler-name", ts.cfg.QSConfig.CrawlerName),
		zap.String("s3-path", ts.cfg.QSConfig.DataPath()),
		zap.String("schedule", ts.cfg.QSConfig.CrawlerSchedule),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	_, err := ts.cfg.GlueAPI.CreateCrawler(ctx, input)
	cancel()
	if err != nil {
		var exists *glue_types.AlreadyExistsException
		if errors.As(err, &exists) {
			ts.cfg.Logger.Warn("crawler already exists", zap.String("crawler-name", ts.cfg.QSConfig.CrawlerName))
			return nil
		}
		ts.cfg.Logger.Warn("failed to create crawler", zap.Error(err))
		return err
	}
	ts.cfg.Logger.Info("created crawler", zap.String("crawler-name", ts.cfg.QSConfig.CrawlerName))
	return nil
}

// startAndWait kicks off one crawl and polls until the crawler settles
// back to READY. Crawl runs are asynchronous server-side; without this
// wait the catalog state on completion is unknown.
func (ts *tester) startAndWait() error {
	name := ts.cfg.QSConfig.CrawlerName

	ts.cfg.Logger.Info("starting crawler", zap.String("crawler-name", name))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	_, err := ts.cfg.GlueAPI.StartCrawler(ctx, &aws_glue_v2.StartCrawlerInput{
		Name: aws_v2.String(name),
	})
	cancel()
	if err != nil {
		var running *glue_types.CrawlerRunningException
		if !errors.As(err, &running) {
			ts.cfg.Logger.Warn("failed to start crawler", zap.Error(err))
			return err
		}
		ts.cfg.Logger.Warn("crawler already running", zap.String("crawler-name", name))
	}

	now := time.Now()
	ctx, cancel = context.WithTimeout(context.Background(), ts.cfg.QSConfig.CrawlerWaitTimeout)
	defer cancel()

	// cap GetCrawler calls; crawl runs take minutes
	limiter := rate.NewLimiter(rate.Every(15*time.Second), 1)
	for {
		select {
		case <-ts.cfg.Stopc:
			return errors.New("crawler wait stopped")
		default:
		}
		if werr := limiter.Wait(ctx); werr != nil {
			return fmt.Errorf("crawler %q did not settle in %v (%v)", name, ts.cfg.QSConfig.CrawlerWaitTimeout, werr)
		}

		out, gerr := ts.cfg.GlueAPI.GetCrawler(ctx, &aws_glue_v2.GetCrawlerInput{
			Name: aws_v2.String(name),
		})
		if gerr != nil {
			ts.cfg.Logger.Warn("failed to get crawler; retrying", zap.Error(gerr))
			continue
		}
		state := out.Crawler.State
		ts.cfg.QSConfig.Status.CrawlerState = string(state)
		ts.cfg.QSConfig.Sync()

		ts.cfg.Logger.Info("polling crawler",
			zap.String("crawler-name", name),
			zap.String("state", string(state)),
			zap.String("started", humanize.RelTime(now, time.Now(), "ago", "from now")),
		)
		if state != glue_types.CrawlerStateReady {
			continue
		}

		if lastCrawl := out.Crawler.LastCrawl; lastCrawl != nil && lastCrawl.Status == glue_types.LastCrawlStatusFailed {
			return fmt.Errorf("crawl run failed: %s", aws_v2.ToString(lastCrawl.ErrorMessage))
		}
		ts.cfg.Logger.Info("crawler settled", zap.String("crawler-name", name))
		return nil
	}
}

func (ts *tester) Delete() error {
	name := ts.cfg.QSConfig.CrawlerName
	ts.cfg.Logger.Info("deleting crawler", zap.String("crawler-name", name))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	_, err := ts.cfg.GlueAPI.DeleteCrawler(ctx, &aws_glue_v2.DeleteCrawlerInput{
		Name: aws_v2.String(name),
	})
	cancel()
	if err != nil {
		var notFound *glue_types.EntityNotFoundException
		if !errors.As(err, &notFound) {
			ts.cfg.Logger.Warn("failed to delete crawler", zap.Error(err))
			return err
		}
		ts.cfg.Logger.Info("crawler not found", zap.String("crawler-name", name))
	}

	ts.cfg.QSConfig.Status.CrawlerCreated = false
	ts.cfg.QSConfig.Status.CrawlerState = ""
	ts.cfg.QSConfig.Sync()

	ts.cfg.Logger.Info("deleted crawler", zap.String("crawler-name", name))
	return nil
}
