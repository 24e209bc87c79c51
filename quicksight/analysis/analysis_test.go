package analysis

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aws/aws-quicksight-tester/qsconfig"
	aws_v2 "github.com/aws/aws-sdk-go-v2/aws"
	aws_quicksight_v2 "github.com/aws/aws-sdk-go-v2/service/quicksight"
	qs_types "github.com/aws/aws-sdk-go-v2/service/quicksight/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeQuickSight struct {
	createAnalysisInput *aws_quicksight_v2.CreateAnalysisInput
	createAnalysisErr   error
	deleteAnalysisInput *aws_quicksight_v2.DeleteAnalysisInput
}

func (f *fakeQuickSight) CreateAnalysis(ctx context.Context, input *aws_quicksight_v2.CreateAnalysisInput, optFns ...func(*aws_quicksight_v2.Options)) (*aws_quicksight_v2.CreateAnalysisOutput, error) {
	f.createAnalysisInput = input
	if f.createAnalysisErr != nil {
		return nil, f.createAnalysisErr
	}
	return &aws_quicksight_v2.CreateAnalysisOutput{
		Arn:            aws_v2.String("arn:aws:quicksight:us-west-2:123456789012:analysis/sales_analysis"),
		CreationStatus: qs_types.ResourceStatusCreationInProgress,
	}, nil
}

func (f *fakeQuickSight) DeleteAnalysis(ctx context.Context, input *aws_quicksight_v2.DeleteAnalysisInput, optFns ...func(*aws_quicksight_v2.Options)) (*aws_quicksight_v2.DeleteAnalysisOutput, error) {
	f.deleteAnalysisInput = input
	return &aws_quicksight_v2.DeleteAnalysisOutput{}, nil
}

func newTestQSConfig(t *testing.T) *qsconfig.Config {
	cfg := qsconfig.NewDefault()
	cfg.ConfigPath = filepath.Join(t.TempDir(), "qs.yaml")
	cfg.AWSAccountID = "123456789012"
	cfg.S3Bucket = "sales-data-bucket"
	cfg.DataSourceARN = "arn:aws:quicksight:us-west-2:123456789012:datasource/sales-source"
	cfg.UserPrincipalARN = "arn:aws:quicksight:us-west-2:123456789012:user/default/user1"
	cfg.GroupPrincipalARN = "arn:aws:quicksight:us-west-2:123456789012:group/default/analysts"
	cfg.TemplateARN = "arn:aws:quicksight:us-west-2:123456789012:template/sales_template"
	require.NoError(t, cfg.ValidateAndSetDefaults())
	return cfg
}

func TestBuildCreateAnalysisInput(t *testing.T) {
	cfg := newTestQSConfig(t)
	cfg.Status.DataSetARN = "arn:aws:quicksight:us-west-2:123456789012:dataset/sales_dataset"
	input := BuildCreateAnalysisInput(cfg)

	require.NotNil(t, input.Definition)
	require.Len(t, input.Definition.DataSetIdentifierDeclarations, 1)
	assert.Equal(t, cfg.Status.DataSetARN,
		aws_v2.ToString(input.Definition.DataSetIdentifierDeclarations[0].DataSetArn))

	require.Len(t, input.Definition.Sheets, 1)
	visuals := input.Definition.Sheets[0].Visuals
	require.Len(t, visuals, 2)

	line := visuals[0].LineChartVisual
	require.NotNil(t, line)
	assert.Equal(t, SalesTrendVisualID, aws_v2.ToString(line.VisualId))
	assert.Equal(t, qs_types.VisibilityVisible, line.Title.Visibility)
	assert.Equal(t, "Sales Trend", aws_v2.ToString(line.Title.FormatText.PlainText))
	assert.Equal(t, qs_types.LegendPositionRight, line.ChartConfiguration.Legend.Position)
	assert.Equal(t, qs_types.VisibilityVisible, line.ChartConfiguration.DataLabels.Visibility)

	// click action must target the product details visual on the same sheet
	require.Len(t, line.Actions, 1)
	action := line.Actions[0]
	assert.Equal(t, qs_types.VisualCustomActionTriggerDataPointClick, action.Trigger)
	require.Len(t, action.ActionOperations, 1)
	filterOp := action.ActionOperations[0].FilterOperation
	require.NotNil(t, filterOp)
	assert.Equal(t,
		[]string{ProductDetailsVisualID},
		filterOp.TargetVisualsConfiguration.SameSheetTargetVisualConfiguration.TargetVisuals,
	)

	// the drill-down target visual actually exists
	bar := visuals[1].BarChartVisual
	require.NotNil(t, bar)
	assert.Equal(t, ProductDetailsVisualID, aws_v2.ToString(bar.VisualId))

	require.Len(t, input.Permissions, 1)
	assert.Equal(t, cfg.UserPrincipalARN, aws_v2.ToString(input.Permissions[0].Principal))
	assert.Contains(t, input.Permissions[0].Actions, "quicksight:DescribeAnalysis")
	assert.Contains(t, input.Permissions[0].Actions, "quicksight:UpdateAnalysis")

	// builder is pure
	assert.Equal(t, input, BuildCreateAnalysisInput(cfg))
}

func TestCreateAndDelete(t *testing.T) {
	cfg := newTestQSConfig(t)
	api := &fakeQuickSight{}
	ts := New(Config{
		Logger:   zap.NewNop(),
		Stopc:    make(chan struct{}),
		QSConfig: cfg,
		QSAPI:    api,
	})

	require.NoError(t, ts.Create())
	assert.True(t, cfg.Status.AnalysisCreated)
	assert.NotEmpty(t, cfg.Status.AnalysisARN)

	require.NoError(t, ts.Delete())
	assert.False(t, cfg.Status.AnalysisCreated)
	require.NotNil(t, api.deleteAnalysisInput)
	assert.True(t, api.deleteAnalysisInput.ForceDeleteWithoutRecovery)
}

func TestCreateToleratesExisting(t *testing.T) {
	cfg := newTestQSConfig(t)
	api := &fakeQuickSight{createAnalysisErr: &qs_types.ResourceExistsException{}}
	ts := New(Config{
		Logger:   zap.NewNop(),
		Stopc:    make(chan struct{}),
		QSConfig: cfg,
		QSAPI:    api,
	})
	require.NoError(t, ts.Create())
	assert.True(t, cfg.Status.AnalysisCreated)
}
