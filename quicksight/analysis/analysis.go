// Package analysis implements the QuickSight analysis step of the
// pipeline: one sheet with a sales trend line chart that drills into a
// per-product bar chart on click.
package analysis

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
	CreateAnalysis(ctx context.Context, input *aws_quicksight_v2.CreateAnalysisInput, optFns ...func(*aws_quicksight_v2.Options)) (*aws_quicksight_v2.CreateAnalysisOutput, error)
	DeleteAnalysis(ctx context.Context, input *aws_quicksight_v2.DeleteAnalysisInput, optFns ...func(*aws_quicksight_v2.Options)) (*aws_quicksight_v2.DeleteAnalysisOutput, error)
}

// Config defines the analysis step configuration.
type Config struct {
	Logger   *zap.Logger
	Stopc    chan struct{}
	QSConfig *qsconfig.Config
	QSAPI    QuickSightAPI
}

const (
	// DataSetIdentifier is the local dataset name inside the definition.
	DataSetIdentifier = "sales_data"

	// SheetID is the single sheet of the analysis.
	SheetID = "sales_sheet"

	// SalesTrendVisualID is the line chart showing revenue over time.
	SalesTrendVisualID = "sales_trend"
	// ProductDetailsVisualID is the bar chart the trend chart drills
	// into on click. It has to exist on the same sheet or the custom
	// action target would dangle.
	ProductDetailsVisualID = "product_details"

	// DrillDownActionID is the click action on the trend chart.
	DrillDownActionID = "sales_trend_drill_down"
)

var pkgName = path.Base(reflect.TypeOf(tester{}).PkgPath())

// New creates a new analysis tester.
func New(cfg Config) qs_tester.Tester {
	cfg.Logger.Info("creating tester", zap.String("tester", pkgName))
	return &tester{cfg: cfg}
}

type tester struct {
	cfg Config
}

func (ts *tester) Name() string { return pkgName }

func column(name string) *qs_types.ColumnIdentifier {
	return &qs_types.ColumnIdentifier{
		ColumnName:        aws_v2.String(name),
		DataSetIdentifier: aws_v2.String(DataSetIdentifier),
	}
}

func sumOfRevenue(fieldID string) qs_types.MeasureField {
	return qs_types.MeasureField{
		NumericalMeasureField: &qs_types.NumericalMeasureField{
			FieldId: aws_v2.String(fieldID),
			Column:  column("revenue"),
			AggregationFunction: &qs_types.NumericalAggregationFunction{
				SimpleNumericalAggregation: qs_types.SimpleNumericalAggregationFunctionSum,
			},
		},
	}
}

func visibleTitle(text string) *qs_types.VisualTitleLabelOptions {
	return &qs_types.VisualTitleLabelOptions{
		Visibility: qs_types.VisibilityVisible,
		FormatText: &qs_types.ShortFormatText{
			PlainText: aws_v2.String(text),
		},
	}
}

// salesTrendVisual is the line chart: daily revenue over sale date,
// legend on the right, data labels on, click drills into the product
// details bar chart.
func salesTrendVisual() qs_types.Visual {
	return qs_types.Visual{
		LineChartVisual: &qs_types.LineChartVisual{
			VisualId: aws_v2.String(SalesTrendVisualID),
			Title:    visibleTitle("Sales Trend"),
			ChartConfiguration: &qs_types.LineChartConfiguration{
				FieldWells: &qs_types.LineChartFieldWells{
					LineChartAggregatedFieldWells: &qs_types.LineChartAggregatedFieldWells{
						Category: []qs_types.DimensionField{
							{
								DateDimensionField: &qs_types.DateDimensionField{
									FieldId:         aws_v2.String("sale_date"),
									Column:          column("sale_date"),
									DateGranularity: qs_types.TimeGranularityDay,
								},
							},
						},
						Values: []qs_types.MeasureField{sumOfRevenue("revenue")},
					},
				},
				Legend: &qs_types.LegendOptions{
					Visibility: qs_types.VisibilityVisible,
					Position:   qs_types.LegendPositionRight,
				},
				DataLabels: &qs_types.DataLabelOptions{
					Visibility: qs_types.VisibilityVisible,
				},
			},
			Actions: []qs_types.VisualCustomAction{
				{
					CustomActionId: aws_v2.String(DrillDownActionID),
					Name:           aws_v2.String("Drill down to product details"),
					Status:         qs_types.WidgetStatusEnabled,
					Trigger:        qs_types.VisualCustomActionTriggerDataPointClick,
					ActionOperations: []qs_types.VisualCustomActionOperation{
						{
							FilterOperation: &qs_types.CustomActionFilterOperation{
								SelectedFieldsConfiguration: &qs_types.FilterOperationSelectedFieldsConfiguration{
									SelectedFieldOptions: qs_types.SelectedFieldOptionsAllFields,
								},
								TargetVisualsConfiguration: &qs_types.FilterOperationTargetVisualsConfiguration{
									SameSheetTargetVisualConfiguration: &qs_types.SameSheetTargetVisualConfiguration{
										TargetVisuals: []string{ProductDetailsVisualID},
									},
								},
							},
						},
					},
				},
			},
		},
	}
}

// productDetailsVisual is the drill-down target: revenue by product.
func productDetailsVisual() qs_types.Visual {
	return qs_types.Visual{
		BarChartVisual: &qs_types.BarChartVisual{
			VisualId: aws_v2.String(ProductDetailsVisualID),
			Title:    visibleTitle("Product Details"),
			ChartConfiguration: &qs_types.BarChartConfiguration{
				FieldWells: &qs_types.BarChartFieldWells{
					BarChartAggregatedFieldWells: &qs_types.BarChartAggregatedFieldWells{
						Category: []qs_types.DimensionField{
							{
								CategoricalDimensionField: &qs_types.CategoricalDimensionField{
									FieldId: aws_v2.String("product_id"),
									Column:  column("product_id"),
								},
							},
						},
						Values: []qs_types.MeasureField{sumOfRevenue("product_revenue")},
					},
				},
				DataLabels: &qs_types.DataLabelOptions{
					Visibility: qs_types.VisibilityVisible,
				},
			},
		},
	}
}

// BuildCreateAnalysisInput assembles the create-analysis request.
func BuildCreateAnalysisInput(cfg *qsconfig.Config) *aws_quicksight_v2.CreateAnalysisInput {
	return &aws_quicksight_v2.CreateAnalysisInput{
		AwsAccountId: aws_v2.String(cfg.AWSAccountID),
		AnalysisId:   aws_v2.String(cfg.AnalysisID),
		Name:         aws_v2.String(cfg.AnalysisName),
		Definition: &qs_types.AnalysisDefinition{
			DataSetIdentifierDeclarations: []qs_types.DataSetIdentifierDeclaration{
				{
					Identifier: aws_v2.String(DataSetIdentifier),
					DataSetArn: aws_v2.String(cfg.ResolveDataSetARN()),
				},
			},
			Sheets: []qs_types.SheetDefinition{
				{
					SheetId: aws_v2.String(SheetID),
					Name:    aws_v2.String("Sales"),
					Visuals: []qs_types.Visual{
						salesTrendVisual(),
						productDetailsVisual(),
					},
				},
			},
		},
		Permissions: []qs_types.ResourcePermission{
			{
				Principal: aws_v2.String(cfg.UserPrincipalARN),
				Actions: []string{
					"quicksight:DescribeAnalysis",
					"quicksight:UpdateAnalysis",
					"quicksight:QueryAnalysis",
					"quicksight:RestoreAnalysis",
				},
			},
		},
	}
}

func (ts *tester) Create() (err error) {
	if ts.cfg.QSConfig.Status.AnalysisCreated {
		ts.cfg.Logger.Info("skipping tester.Create", zap.String("tester", pkgName))
		return nil
	}

	ts.cfg.Logger.Info("starting tester.Create", zap.String("tester", pkgName))
	createStart := time.Now()

	ts.cfg.Logger.Info("creating analysis",
		zap.String("analysis-id", ts.cfg.QSConfig.AnalysisID),
		zap.String("dataset-arn", ts.cfg.QSConfig.ResolveDataSetARN()),
	)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	out, err := ts.cfg.QSAPI.CreateAnalysis(ctx, BuildCreateAnalysisInput(ts.cfg.QSConfig))
	cancel()
	if err != nil {
		var exists *qs_types.ResourceExistsException
		if !errors.As(err, &exists) {
			ts.cfg.Logger.Warn("failed to create analysis", zap.Error(err))
			return err
		}
		ts.cfg.Logger.Warn("analysis already exists", zap.String("analysis-id", ts.cfg.QSConfig.AnalysisID))
	} else {
		ts.cfg.QSConfig.Status.AnalysisARN = aws_v2.ToString(out.Arn)
		ts.cfg.Logger.Info("created analysis",
			zap.String("analysis-arn", ts.cfg.QSConfig.Status.AnalysisARN),
			zap.String("creation-status", string(out.CreationStatus)),
		)
	}

	ts.cfg.QSConfig.Status.AnalysisCreated = true
	ts.cfg.QSConfig.Status.TimeFrameAnalysis = timeutil.NewTimeFrame(createStart, time.Now())
	return ts.cfg.QSConfig.Sync()
}

func (ts *tester) Delete() error {
	ts.cfg.Logger.Info("deleting analysis", zap.String("analysis-id", ts.cfg.QSConfig.AnalysisID))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	_, err := ts.cfg.QSAPI.DeleteAnalysis(ctx, &aws_quicksight_v2.DeleteAnalysisInput{
		AwsAccountId:               aws_v2.String(ts.cfg.QSConfig.AWSAccountID),
		AnalysisId:                 aws_v2.String(ts.cfg.QSConfig.AnalysisID),
		ForceDeleteWithoutRecovery: true,
	})
	cancel()
	if err != nil {
		var notFound *qs_types.ResourceNotFoundException
		if !errors.As(err, &notFound) {
			ts.cfg.Logger.Warn("failed to delete analysis", zap.Error(err))
			return err
		}
		ts.cfg.Logger.Info("analysis not found", zap.String("analysis-id", ts.cfg.QSConfig.AnalysisID))
	}

	ts.cfg.QSConfig.Status.AnalysisCreated = false
	ts.cfg.QSConfig.Status.AnalysisARN = ""
	ts.cfg.QSConfig.Sync()

	ts.cfg.Logger.Info("deleted analysis", zap.String("analysis-id", ts.cfg.QSConfig.AnalysisID))
	return nil
}
