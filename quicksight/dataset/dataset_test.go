package dataset

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
	createDataSetInput *aws_quicksight_v2.CreateDataSetInput
	createDataSetErr   error
	refreshPropsInput  *aws_quicksight_v2.PutDataSetRefreshPropertiesInput
	refreshSchedInput  *aws_quicksight_v2.CreateRefreshScheduleInput
	deleteDataSetErr   error
}

func (f *fakeQuickSight) CreateDataSet(ctx context.Context, input *aws_quicksight_v2.CreateDataSetInput, optFns ...func(*aws_quicksight_v2.Options)) (*aws_quicksight_v2.CreateDataSetOutput, error) {
	f.createDataSetInput = input
	if f.createDataSetErr != nil {
		return nil, f.createDataSetErr
	}
	return &aws_quicksight_v2.CreateDataSetOutput{
		Arn: aws_v2.String("arn:aws:quicksight:us-west-2:123456789012:dataset/sales_dataset"),
	}, nil
}

func (f *fakeQuickSight) PutDataSetRefreshProperties(ctx context.Context, input *aws_quicksight_v2.PutDataSetRefreshPropertiesInput, optFns ...func(*aws_quicksight_v2.Options)) (*aws_quicksight_v2.PutDataSetRefreshPropertiesOutput, error) {
	f.refreshPropsInput = input
	return &aws_quicksight_v2.PutDataSetRefreshPropertiesOutput{}, nil
}

func (f *fakeQuickSight) CreateRefreshSchedule(ctx context.Context, input *aws_quicksight_v2.CreateRefreshScheduleInput, optFns ...func(*aws_quicksight_v2.Options)) (*aws_quicksight_v2.CreateRefreshScheduleOutput, error) {
	f.refreshSchedInput = input
	return &aws_quicksight_v2.CreateRefreshScheduleOutput{}, nil
}

func (f *fakeQuickSight) DeleteDataSet(ctx context.Context, input *aws_quicksight_v2.DeleteDataSetInput, optFns ...func(*aws_quicksight_v2.Options)) (*aws_quicksight_v2.DeleteDataSetOutput, error) {
	return &aws_quicksight_v2.DeleteDataSetOutput{}, f.deleteDataSetErr
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

func TestBuildCreateDataSetInput(t *testing.T) {
	cfg := newTestQSConfig(t)
	input := BuildCreateDataSetInput(cfg)

	assert.Equal(t, qs_types.DataSetImportModeSpice, input.ImportMode)

	require.Contains(t, input.PhysicalTableMap, PhysicalTableID)
	rel, ok := input.PhysicalTableMap[PhysicalTableID].(*qs_types.PhysicalTableMemberRelationalTable)
	require.True(t, ok)
	require.Len(t, rel.Value.InputColumns, 4)
	assert.Equal(t, "sales_db", aws_v2.ToString(rel.Value.Schema))
	assert.Equal(t, qs_types.InputColumnDataTypeDatetime, rel.Value.InputColumns[0].Type)
	assert.Equal(t, qs_types.InputColumnDataTypeDecimal, rel.Value.InputColumns[3].Type)

	require.Contains(t, input.LogicalTableMap, PhysicalTableID)
	logical := input.LogicalTableMap[PhysicalTableID]
	assert.Equal(t, LogicalTableAlias, aws_v2.ToString(logical.Alias))
	require.Len(t, logical.DataTransforms, 1)
	op, ok := logical.DataTransforms[0].(*qs_types.TransformOperationMemberCreateColumnsOperation)
	require.True(t, ok)
	require.Len(t, op.Value.Columns, 1)
	assert.Equal(t, "unit_price", aws_v2.ToString(op.Value.Columns[0].ColumnName))
	assert.Equal(t, "revenue / quantity", aws_v2.ToString(op.Value.Columns[0].Expression))

	// builder is pure
	assert.Equal(t, input, BuildCreateDataSetInput(cfg))
}

func TestBuildRefreshInputs(t *testing.T) {
	cfg := newTestQSConfig(t)

	props := BuildRefreshPropertiesInput(cfg)
	lb := props.DataSetRefreshProperties.RefreshConfiguration.IncrementalRefresh.LookbackWindow
	require.NotNil(t, lb)
	assert.Equal(t, int64(1), aws_v2.ToInt64(lb.Size))
	assert.Equal(t, qs_types.LookbackWindowSizeUnitDay, lb.SizeUnit)
	assert.Equal(t, "sale_date", aws_v2.ToString(lb.ColumnName))

	sched := BuildRefreshScheduleInput(cfg)
	assert.Equal(t, qs_types.IngestionTypeIncrementalRefresh, sched.Schedule.RefreshType)
	assert.Equal(t, qs_types.RefreshIntervalDaily, sched.Schedule.ScheduleFrequency.Interval)
}

func TestCreateRecordsARN(t *testing.T) {
	cfg := newTestQSConfig(t)
	api := &fakeQuickSight{}
	ts := New(Config{
		Logger:   zap.NewNop(),
		Stopc:    make(chan struct{}),
		QSConfig: cfg,
		QSAPI:    api,
	})

	require.NoError(t, ts.Create())
	assert.True(t, cfg.Status.DataSetCreated)
	assert.Equal(t, "arn:aws:quicksight:us-west-2:123456789012:dataset/sales_dataset", cfg.Status.DataSetARN)
	require.NotNil(t, api.refreshPropsInput)
	require.NotNil(t, api.refreshSchedInput)
}

func TestCreateToleratesExisting(t *testing.T) {
	cfg := newTestQSConfig(t)
	api := &fakeQuickSight{createDataSetErr: &qs_types.ResourceExistsException{}}
	ts := New(Config{
		Logger:   zap.NewNop(),
		Stopc:    make(chan struct{}),
		QSConfig: cfg,
		QSAPI:    api,
	})

	require.NoError(t, ts.Create())
	assert.True(t, cfg.Status.DataSetCreated)
	assert.Equal(t, cfg.ResolveDataSetARN(), cfg.Status.DataSetARN)
}

func TestDeleteToleratesMissing(t *testing.T) {
	cfg := newTestQSConfig(t)
	cfg.Status.DataSetCreated = true
	api := &fakeQuickSight{deleteDataSetErr: &qs_types.ResourceNotFoundException{}}
	ts := New(Config{
		Logger:   zap.NewNop(),
		Stopc:    make(chan struct{}),
		QSConfig: cfg,
		QSAPI:    api,
	})
	require.NoError(t, ts.Delete())
	assert.False(t, cfg.Status.DataSetCreated)
}
