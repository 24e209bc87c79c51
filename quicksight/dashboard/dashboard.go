// Package dashboard implements the dashboard publish step of the
// pipeline. The dashboard is published from an existing template with
// the dataset bound to the template's placeholder.
package dashboard

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
	aws_quicksight_v2 "github.com/aws/aws-sdk-go-v2/service/quicksight"
	qs_types "github.com/aws/aws-sdk-go-v2/service/quicksight/types"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// QuickSightAPI is the subset of the QuickSight API used by this package.
type QuickSightAPI interface {
	CreateDashboard(ctx context.Context, input *aws_quicksight_v2.CreateDashboardInput, optFns ...func(*aws_quicksight_v2.Options)) (*aws_quicksight_v2.CreateDashboardOutput, error)
	DescribeDashboard(ctx context.Context, input *aws_quicksight_v2.DescribeDashboardInput, optFns ...func(*aws_quicksight_v2.Options)) (*aws_quicksight_v2.DescribeDashboardOutput, error)
	DeleteDashboard(ctx context.Context, input *aws_quicksight_v2.DeleteDashboardInput, optFns ...func(*aws_quicksight_v2.Options)) (*aws_quicksight_v2.DeleteDashboardOutput, error)
}

// Config defines the dashboard step configuration.
type Config struct {
	Logger   *zap.Logger
	Stopc    chan struct{}
	QSConfig *qsconfig.Config
	QSAPI    QuickSightAPI
}

// DataSetPlaceholder is the template placeholder the dataset binds to.
const DataSetPlaceholder = "sales_data"

var pkgName = path.Base(reflect.TypeOf(tester{}).PkgPath())

// New creates a new dashboard tester.
func New(cfg Config) qs_tester.Tester {
	cfg.Logger.Info("creating tester", zap.String("tester", pkgName))
	return &tester{cfg: cfg}
}

type tester struct {
	cfg Config
}

func (ts *tester) Name() string { return pkgName }

// BuildCreateDashboardInput assembles the publish request: one template
// source with exactly one dataset placeholder binding and a group-level
// permission grant.
func BuildCreateDashboardInput(cfg *qsconfig.Config) *aws_quicksight_v2.CreateDashboardInput {
	return &aws_quicksight_v2.CreateDashboardInput{
		AwsAccountId: aws_v2.String(cfg.AWSAccountID),
		DashboardId:  aws_v2.String(cfg.DashboardID),
		Name:         aws_v2.String(cfg.DashboardName),
		SourceEntity: &qs_types.DashboardSourceEntity{
			SourceTemplate: &qs_types.DashboardSourceTemplate{
				Arn: aws_v2.String(cfg.TemplateARN),
				DataSetReferences: []qs_types.DataSetReference{
					{
						DataSetPlaceholder: aws_v2.String(DataSetPlaceholder),
						DataSetArn:         aws_v2.String(cfg.ResolveDataSetARN()),
					},
				},
			},
		},
		Permissions: []qs_types.ResourcePermission{
			{
				Principal: aws_v2.String(cfg.GroupPrincipalARN),
				Actions: []string{
					"quicksight:DescribeDashboard",
					"quicksight:ListDashboardVersions",
					"quicksight:QueryDashboard",
				},
			},
		},
		VersionDescription: aws_v2.String(cfg.VersionDescription),
	}
}

func (ts *tester) Create() (err error) {
	if ts.cfg.QSConfig.Status.DashboardCreated {
		ts.cfg.Logger.Info("skipping tester.Create", zap.String("tester", pkgName))
		return nil
	}

	ts.cfg.Logger.Info("starting tester.Create", zap.String("tester", pkgName))
	createStart := time.Now()

	ts.cfg.Logger.Info("publishing dashboard",
		zap.String("dashboard-id", ts.cfg.QSConfig.DashboardID),
		zap.String("template-arn", ts.cfg.QSConfig.TemplateARN),
		zap.String("dataset-arn", ts.cfg.QSConfig.ResolveDataSetARN()),
	)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	out, err := ts.cfg.QSAPI.CreateDashboard(ctx, BuildCreateDashboardInput(ts.cfg.QSConfig))
	cancel()
	if err != nil {
		var exists *qs_types.ResourceExistsException
		if !errors.As(err, &exists) {
			ts.cfg.Logger.Warn("failed to publish dashboard", zap.Error(err))
			return err
		}
		ts.cfg.Logger.Warn("dashboard already exists", zap.String("dashboard-id", ts.cfg.QSConfig.DashboardID))
	} else {
		ts.cfg.QSConfig.Status.DashboardARN = aws_v2.ToString(out.Arn)
		ts.cfg.QSConfig.Status.DashboardVersion = aws_v2.ToString(out.VersionArn)
	}

	if err = ts.waitPublished(); err != nil {
		return err
	}

	ts.cfg.QSConfig.Status.DashboardCreated = true
	ts.cfg.QSConfig.Status.TimeFrameDash = timeutil.NewTimeFrame(createStart, time.Now())
	return ts.cfg.QSConfig.Sync()
}

// waitPublished polls until the dashboard version settles. Publication
// is asynchronous server-side; the embed step needs a successfully
// published version.
func (ts *tester) waitPublished() error {
	id := ts.cfg.QSConfig.DashboardID
	now := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(5*time.Second), 1)
	for {
		select {
		case <-ts.cfg.Stopc:
			return errors.New("dashboard wait stopped")
		default:
		}
		if werr := limiter.Wait(ctx); werr != nil {
			return fmt.Errorf("dashboard %q did not publish in time (%v)", id, werr)
		}

		out, derr := ts.cfg.QSAPI.DescribeDashboard(ctx, &aws_quicksight_v2.DescribeDashboardInput{
			AwsAccountId: aws_v2.String(ts.cfg.QSConfig.AWSAccountID),
			DashboardId:  aws_v2.String(id),
		})
		if derr != nil {
			ts.cfg.Logger.Warn("failed to describe dashboard; retrying", zap.Error(derr))
			continue
		}
		if out.Dashboard == nil || out.Dashboard.Version == nil {
			continue
		}

		status := out.Dashboard.Version.Status
		ts.cfg.Logger.Info("polling dashboard",
			zap.String("dashboard-id", id),
			zap.String("status", string(status)),
			zap.String("started", humanize.RelTime(now, time.Now(), "ago", "from now")),
		)
		switch status {
		case qs_types.ResourceStatusCreationSuccessful, qs_types.ResourceStatusUpdateSuccessful:
			ts.cfg.Logger.Info("dashboard published", zap.String("dashboard-id", id))
			return nil
		case qs_types.ResourceStatusCreationFailed, qs_types.ResourceStatusUpdateFailed:
			for _, e := range out.Dashboard.Version.Errors {
				ts.cfg.Logger.Warn("dashboard version error",
					zap.String("type", string(e.Type)),
					zap.String("message", aws_v2.ToString(e.Message)),
				)
			}
			return fmt.Errorf("dashboard %q failed to publish", id)
		}
	}
}

func (ts *tester) Delete() error {
	id := ts.cfg.QSConfig.DashboardID
	ts.cfg.Logger.Info("deleting dashboard", zap.String("dashboard-id", id))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	_, err := ts.cfg.QSAPI.DeleteDashboard(ctx, &aws_quicksight_v2.DeleteDashboardInput{
		AwsAccountId: aws_v2.String(ts.cfg.QSConfig.AWSAccountID),
		DashboardId:  aws_v2.String(id),
	})
	cancel()
	if err != nil {
		var notFound *qs_types.ResourceNotFoundException
		if !errors.As(err, &notFound) {
			ts.cfg.Logger.Warn("failed to delete dashboard", zap.Error(err))
			return err
		}
		ts.cfg.Logger.Info("dashboard not found", zap.String("dashboard-id", id))
	}

	ts.cfg.QSConfig.Status.DashboardCreated = false
	ts.cfg.QSConfig.Status.DashboardARN = ""
	ts.cfg.QSConfig.Status.DashboardVersion = ""
	ts.cfg.QSConfig.Status.EmbedURL = ""
	ts.cfg.QSConfig.Sync()

	ts.cfg.Logger.Info("deleted dashboard", zap.String("dashboard-id", id))
	return nil
}
