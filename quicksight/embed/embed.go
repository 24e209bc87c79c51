// Package embed implements the embed URL step of the pipeline. The
// returned URL is a short-lived signed session; nothing is cached or
// refreshed here.
package embed

import (
	"context"
	"path"
	"reflect"
	"time"

	"github.com/aws/aws-quicksight-tester/qsconfig"
	qs_tester "github.com/aws/aws-quicksight-tester/quicksight/tester"
	aws_v2 "github.com/aws/aws-sdk-go-v2/aws"
	aws_quicksight_v2 "github.com/aws/aws-sdk-go-v2/service/quicksight"
	qs_types "github.com/aws/aws-sdk-go-v2/service/quicksight/types"
	"go.uber.org/zap"
)

// QuickSightAPI is the subset of the QuickSight API used by this package.
type QuickSightAPI interface {
	GetDashboardEmbedUrl(ctx context.Context, input *aws_quicksight_v2.GetDashboardEmbedUrlInput, optFns ...func(*aws_quicksight_v2.Options)) (*aws_quicksight_v2.GetDashboardEmbedUrlOutput, error)
}

// Config defines the embed step configuration.
type Config struct {
	Logger   *zap.Logger
	Stopc    chan struct{}
	QSConfig *qsconfig.Config
	QSAPI    QuickSightAPI
}

var pkgName = path.Base(reflect.TypeOf(tester{}).PkgPath())

// New creates a new embed tester.
func New(cfg Config) qs_tester.Tester {
	cfg.Logger.Info("creating tester", zap.String("tester", pkgName))
	return &tester{cfg: cfg}
}

type tester struct {
	cfg Config
}

func (ts *tester) Name() string { return pkgName }

// BuildGetEmbedURLInput assembles the embed URL request for an
// IAM-authenticated session.
func BuildGetEmbedURLInput(cfg *qsconfig.Config) *aws_quicksight_v2.GetDashboardEmbedUrlInput {
	return &aws_quicksight_v2.GetDashboardEmbedUrlInput{
		AwsAccountId:             aws_v2.String(cfg.AWSAccountID),
		DashboardId:              aws_v2.String(cfg.DashboardID),
		IdentityType:             qs_types.EmbeddingIdentityTypeIam,
		SessionLifetimeInMinutes: aws_v2.Int64(cfg.SessionLifetimeMinutes),
		UndoRedoDisabled:         cfg.UndoRedoDisabled,
		ResetDisabled:            cfg.ResetDisabled,
	}
}

// GetURL requests a fresh embed URL. The URL is a signed credential;
// callers decide where it goes, it is never logged here.
func GetURL(ctx context.Context, lg *zap.Logger, qsAPI QuickSightAPI, cfg *qsconfig.Config) (string, error) {
	lg.Info("requesting dashboard embed URL",
		zap.String("dashboard-id", cfg.DashboardID),
		zap.Int64("session-lifetime-minutes", cfg.SessionLifetimeMinutes),
	)
	out, err := qsAPI.GetDashboardEmbedUrl(ctx, BuildGetEmbedURLInput(cfg))
	if err != nil {
		lg.Warn("failed to get embed URL", zap.Error(err))
		return "", err
	}
	lg.Info("got dashboard embed URL", zap.String("dashboard-id", cfg.DashboardID))
	return aws_v2.ToString(out.EmbedUrl), nil
}

func (ts *tester) Create() error {
	ts.cfg.Logger.Info("starting tester.Create", zap.String("tester", pkgName))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	url, err := GetURL(ctx, ts.cfg.Logger, ts.cfg.QSAPI, ts.cfg.QSConfig)
	cancel()
	if err != nil {
		return err
	}

	ts.cfg.QSConfig.Status.EmbedURL = url
	return ts.cfg.QSConfig.Sync()
}

// Delete is a no-op; embed sessions expire on their own.
func (ts *tester) Delete() error {
	ts.cfg.QSConfig.Status.EmbedURL = ""
	return ts.cfg.QSConfig.Sync()
}
