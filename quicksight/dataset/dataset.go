// Package dataset implements the QuickSight dataset step of the
// pipeline. The dataset wraps the crawled sales table in a SPICE
// snapshot with a derived unit_price column and a daily incremental
// refresh.
package dataset

import (
	"context"
	"errors"
	"path"
	"reflect"
	"time"

	"github.com/aws/aws-quicksight-tester/pkg/timeutil"
	"github.com/aws/aws-quicksight-tester/qsconfig"
	qs_tester "github.com/aws/aws-quicksight-tester/quicksight/tester"
	aws_v2 "github.com/aws/aws-sdk-go-v2/aws"
	aws_quicksight_v2 "github.com/aws/aws-sdk-go-v2/service/quicksight"
	qs_types "github.com/aws/aws-sdk-go-v2/service/quicksight/types"
	"go.uber.org/zap"
)

// QuickSightAPI is the subset of the QuickSight API used by this package.
type QuickSightAPI interface {
	CreateDataSet(ctx context.Context, input *aws_quicksight_v2.CreateDataSetInput, optFns ...func(*aws_quicksight_v2.Options)) (*aws_quicksight_v2.CreateDataSetOutput, error)
	PutDataSetRefreshProperties(ctx context.Context, input *aws_quicksight_v2.PutDataSetRefreshPropertiesInput, optFns ...func(*aws_quicksight_v2.Options)) (*aws_quicksight_v2.PutDataSetRefreshPropertiesOutput, error)
	CreateRefreshSchedule(ctx context.Context, input *aws_quicksight_v2.CreateRefreshScheduleInput, optFns ...func(*aws_quicksight_v2.Options)) (*aws_quicksight_v2.CreateRefreshScheduleOutput, error)
	DeleteDataSet(ctx context.Context, input *aws_quicksight_v2.DeleteDataSetInput, optFns ...func(*aws_quicksight_v2.Options)) (*aws_quicksight_v2.DeleteDataSetOutput, error)
}

// Config defines the dataset step configuration.
type Config struct {
	Logger   *zap.Logger
	Stopc    chan struct{}
	QSConfig *qsconfig.Config
	QSAPI    QuickSightAPI
}

const (
	// PhysicalTableID keys the physical table map.
	PhysicalTableID = "sales_table"
	// LogicalTableAlias names the transform layer on top of the raw schema.
	LogicalTableAlias = "sales_analysis"

	// UnitPriceColumn is the derived column added by the logical table.
	UnitPriceColumn = "unit_price"
	// UnitPriceExpression derives price per unit from the raw columns.
	UnitPriceExpression = "revenue / quantity"

	// RefreshScheduleID keys the dataset refresh schedule.
	RefreshScheduleID = "daily-incremental"

	// LookbackWindowSize is how far back each incremental refresh rescans.
	LookbackWindowSize = int64(1)
)

var pkgName = path.Base(reflect.TypeOf(tester{}).PkgPath())

// New creates a new dataset tester.
func New(cfg Config) qs_tester.Tester {
	cfg.Logger.Info("creating tester", zap.String("tester", pkgName))
	return &tester{cfg: cfg}
}

type tester struct {
	cfg Config
}

func (ts *tester) Name() string { return pkgName }

// BuildCreateDataSetInput assembles the create-dataset request: one
// physical relational table over the crawled schema and one logical
// table deriving unit_price, imported into SPICE.
func BuildCreateDataSetInput(cfg *qsconfig.Config) *aws_quicksight_v2.CreateDataSetInput {
	return &aws_quicksight_v2.CreateDataSetInput{
		AwsAccountId: aws_v2.String(cfg.AWSAccountID),
		DataSetId:    aws_v2.String(cfg.DataSetID),
		Name:         aws_v2.String(cfg.DataSetName),
		ImportMode:   qs_types.DataSetImportModeSpice,
		PhysicalTableMap: map[string]qs_types.PhysicalTable{
			PhysicalTableID: &qs_types.PhysicalTableMemberRelationalTable{
				Value: qs_types.RelationalTable{
					DataSourceArn: aws_v2.String(cfg.DataSourceARN),
					Schema:        aws_v2.String(cfg.GlueDatabaseName),
					Name:          aws_v2.String(PhysicalTableID),
					InputColumns: []qs_types.InputColumn{
						{Name: aws_v2.String("sale_date"), Type: qs_types.InputColumnDataTypeDatetime},
						{Name: aws_v2.String("product_id"), Type: qs_types.InputColumnDataTypeString},
						{Name: aws_v2.String("quantity"), Type: qs_types.InputColumnDataTypeInteger},
						{Name: aws_v2.String("revenue"), Type: qs_types.InputColumnDataTypeDecimal},
					},
				},
			},
		},
		LogicalTableMap: map[string]qs_types.LogicalTable{
			PhysicalTableID: {
				Alias: aws_v2.String(LogicalTableAlias),
				Source: &qs_types.LogicalTableSource{
					PhysicalTableId: aws_v2.String(PhysicalTableID),
				},
				DataTransforms: []qs_types.TransformOperation{
					&qs_types.TransformOperationMemberCreateColumnsOperation{
						Value: qs_types.CreateColumnsOperation{
							Columns: []qs_types.CalculatedColumn{
								{
									ColumnName: aws_v2.String(UnitPriceColumn),
									ColumnId:   aws_v2.String(UnitPriceColumn),
									Expression: aws_v2.String(UnitPriceExpression),
								},
							},
						},
					},
				},
			},
		},
	}
}

// BuildRefreshPropertiesInput configures incremental refresh with a
// 1-day lookback window over the sale date.
func BuildRefreshPropertiesInput(cfg *qsconfig.Config) *aws_quicksight_v2.PutDataSetRefreshPropertiesInput {
	return &aws_quicksight_v2.PutDataSetRefreshPropertiesInput{
		AwsAccountId: aws_v2.String(cfg.AWSAccountID),
		DataSetId:    aws_v2.String(cfg.DataSetID),
		DataSetRefreshProperties: &qs_types.DataSetRefreshProperties{
			RefreshConfiguration: &qs_types.RefreshConfiguration{
				IncrementalRefresh: &qs_types.IncrementalRefresh{
					LookbackWindow: &qs_types.LookbackWindow{
						ColumnName: aws_v2.String("sale_date"),
						Size:       aws_v2.Int64(LookbackWindowSize),
						SizeUnit:   qs_types.LookbackWindowSizeUnitDay,
					},
				},
			},
		},
	}
}

// BuildRefreshScheduleInput schedules a daily incremental refresh.
func BuildRefreshScheduleInput(cfg *qsconfig.Config) *aws_quicksight_v2.CreateRefreshScheduleInput {
	return &aws_quicksight_v2.CreateRefreshScheduleInput{
		AwsAccountId: aws_v2.String(cfg.AWSAccountID),
		DataSetId:    aws_v2.String(cfg.DataSetID),
		Schedule: &qs_types.RefreshSchedule{
			ScheduleId:  aws_v2.String(RefreshScheduleID),
			RefreshType: qs_types.IngestionTypeIncrementalRefresh,
			ScheduleFrequency: &qs_types.RefreshFrequency{
				Interval:     qs_types.RefreshIntervalDaily,
				TimeOfTheDay: aws_v2.String(cfg.RefreshTimeOfDay),
				Timezone:     aws_v2.String(cfg.RefreshTimezone),
			},
		},
	}
}

func (ts *tester) Create() (err error) {
	if ts.cfg.QSConfig.Status.DataSetCreated {
		ts.cfg.Logger.Info("skipping tester.Create", zap.String("tester", pkgName))
		return nil
	}

	ts.cfg.Logger.Info("starting tester.Create", zap.String("tester", pkgName))
	createStart := time.Now()

	ts.cfg.Logger.Info("creating dataset",
		zap.String("dataset-id", ts.cfg.QSConfig.DataSetID),
		zap.String("import-mode", string(qs_types.DataSetImportModeSpice)),
	)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	out, err := ts.cfg.QSAPI.CreateDataSet(ctx, BuildCreateDataSetInput(ts.cfg.QSConfig))
	cancel()
	if err != nil {
		var exists *qs_types.ResourceExistsException
		if !errors.As(err, &exists) {
			ts.cfg.Logger.Warn("failed to create dataset", zap.Error(err))
			return err
		}
		ts.cfg.Logger.Warn("dataset already exists", zap.String("dataset-id", ts.cfg.QSConfig.DataSetID))
		ts.cfg.QSConfig.Status.DataSetARN = ts.cfg.QSConfig.ResolveDataSetARN()
	} else {
		ts.cfg.QSConfig.Status.DataSetARN = aws_v2.ToString(out.Arn)
		ts.cfg.Logger.Info("created dataset", zap.String("dataset-arn", ts.cfg.QSConfig.Status.DataSetARN))
	}

	if err = ts.putRefreshProperties(); err != nil {
		return err
	}
	if err = ts.createRefreshSchedule(); err != nil {
		return err
	}

	ts.cfg.QSConfig.Status.DataSetCreated = true
	ts.cfg.QSConfig.Status.TimeFrameDataSet = timeutil.NewTimeFrame(createStart, time.Now())
	return ts.cfg.QSConfig.Sync()
}

func (ts *tester) putRefreshProperties() error {
	ts.cfg.Logger.Info("putting dataset refresh properties",
		zap.String("dataset-id", ts.cfg.QSConfig.DataSetID),
		zap.Int64("lookback-days", LookbackWindowSize),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	_, err := ts.cfg.QSAPI.PutDataSetRefreshProperties(ctx, BuildRefreshPropertiesInput(ts.cfg.QSConfig))
	cancel()
	if err != nil {
		ts.cfg.Logger.Warn("failed to put refresh properties", zap.Error(err))
		return err
	}
	return nil
}

func (ts *tester) createRefreshSchedule() error {
	ts.cfg.Logger.Info("creating refresh schedule",
		zap.String("dataset-id", ts.cfg.QSConfig.DataSetID),
		zap.String("time-of-day", ts.cfg.QSConfig.RefreshTimeOfDay),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	_, err := ts.cfg.QSAPI.CreateRefreshSchedule(ctx, BuildRefreshScheduleInput(ts.cfg.QSConfig))
	cancel()
	if err != nil {
		var exists *qs_types.ResourceExistsException
		if errors.As(err, &exists) {
			ts.cfg.Logger.Warn("refresh schedule already exists", zap.String("schedule-id", RefreshScheduleID))
			return nil
		}
		ts.cfg.Logger.Warn("failed to create refresh schedule", zap.Error(err))
		return err
	}
	return nil
}

func (ts *tester) Delete() error {
	ts.cfg.Logger.Info("deleting dataset", zap.String("dataset-id", ts.cfg.QSConfig.DataSetID))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	_, err := ts.cfg.QSAPI.DeleteDataSet(ctx, &aws_quicksight_v2.DeleteDataSetInput{
		AwsAccountId: aws_v2.String(ts.cfg.QSConfig.AWSAccountID),
		DataSetId:    aws_v2.String(ts.cfg.QSConfig.DataSetID),
	})
	cancel()
	if err != nil {
		var notFound *qs_types.ResourceNotFoundException
		if !errors.As(err, &notFound) {
			ts.cfg.Logger.Warn("failed to delete dataset", zap.Error(err))
			return err
		}
		ts.cfg.Logger.Info("dataset not found", zap.String("dataset-id", ts.cfg.QSConfig.DataSetID))
	}

	ts.cfg.QSConfig.Status.DataSetCreated = false
	ts.cfg.QSConfig.Status.DataSetARN = ""
	ts.cfg.QSConfig.Sync()

	ts.cfg.Logger.Info("deleted dataset", zap.String("dataset-id", ts.cfg.QSConfig.DataSetID))
	return nil
}
