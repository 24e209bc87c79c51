package crawler

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aws/aws-quicksight-tester/pkg/cronutil"
	"github.com/aws/aws-quicksight-tester/qsconfig"
	aws_v2 "github.com/aws/aws-sdk-go-v2/aws"
	aws_glue_v2 "github.com/aws/aws-sdk-go-v2/service/glue"
	glue_types "github.com/aws/aws-sdk-go-v2/service/glue/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeGlue struct {
	createDatabaseInput *aws_glue_v2.CreateDatabaseInput
	createCrawlerInput  *aws_glue_v2.CreateCrawlerInput
	createCrawlerErr    error
	deleteCrawlerErr    error
	crawlerState        glue_types.CrawlerState
}

func (f *fakeGlue) CreateDatabase(ctx context.Context, input *aws_glue_v2.CreateDatabaseInput, optFns ...func(*aws_glue_v2.Options)) (*aws_glue_v2.CreateDatabaseOutput, error) {
	f.createDatabaseInput = input
	return &aws_glue_v2.CreateDatabaseOutput{}, nil
}

func (f *fakeGlue) CreateCrawler(ctx context.Context, input *aws_glue_v2.CreateCrawlerInput, optFns ...func(*aws_glue_v2.Options)) (*aws_glue_v2.CreateCrawlerOutput, error) {
	f.createCrawlerInput = input
	return &aws_glue_v2.CreateCrawlerOutput{}, f.createCrawlerErr
}

func (f *fakeGlue) StartCrawler(ctx context.Context, input *aws_glue_v2.StartCrawlerInput, optFns ...func(*aws_glue_v2.Options)) (*aws_glue_v2.StartCrawlerOutput, error) {
	return &aws_glue_v2.StartCrawlerOutput{}, nil
}

func (f *fakeGlue) GetCrawler(ctx context.Context, input *aws_glue_v2.GetCrawlerInput, optFns ...func(*aws_glue_v2.Options)) (*aws_glue_v2.GetCrawlerOutput, error) {
	return &aws_glue_v2.GetCrawlerOutput{
		Crawler: &glue_types.Crawler{State: f.crawlerState},
	}, nil
}

func (f *fakeGlue) DeleteCrawler(ctx context.Context, input *aws_glue_v2.DeleteCrawlerInput, optFns ...func(*aws_glue_v2.Options)) (*aws_glue_v2.DeleteCrawlerOutput, error) {
	return &aws_glue_v2.DeleteCrawlerOutput{}, f.deleteCrawlerErr
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
	cfg.Status.RoleARN = "arn:aws:iam::123456789012:role/sales-crawler-role"
	require.NoError(t, cfg.ValidateAndSetDefaults())
	return cfg
}

func TestBuildCreateCrawlerInput(t *testing.T) {
	cfg := newTestQSConfig(t)
	input := BuildCreateCrawlerInput(cfg)

	require.NotNil(t, input.Targets)
	require.Len(t, input.Targets.S3Targets, 1)
	assert.Equal(t, "s3://sales-data-bucket/sales-data/", aws_v2.ToString(input.Targets.S3Targets[0].Path))
	assert.Equal(t, "sales_data_crawler", aws_v2.ToString(input.Name))
	assert.Equal(t, "sales_db", aws_v2.ToString(input.DatabaseName))
	assert.Equal(t, cfg.Status.RoleARN, aws_v2.ToString(input.Role))
	assert.NoError(t, cronutil.Validate(aws_v2.ToString(input.Schedule)))

	// builder is pure
	assert.Equal(t, input, BuildCreateCrawlerInput(cfg))
}

func TestCreate(t *testing.T) {
	cfg := newTestQSConfig(t)
	api := &fakeGlue{crawlerState: glue_types.CrawlerStateReady}
	ts := New(Config{
		Logger:   zap.NewNop(),
		Stopc:    make(chan struct{}),
		QSConfig: cfg,
		GlueAPI:  api,
	})

	require.NoError(t, ts.Create())
	require.NotNil(t, api.createDatabaseInput)
	assert.Equal(t, "sales_db", aws_v2.ToString(api.createDatabaseInput.DatabaseInput.Name))
	require.NotNil(t, api.createCrawlerInput)
	assert.True(t, cfg.Status.CrawlerCreated)

	// second Create is a no-op
	api.createCrawlerInput = nil
	require.NoError(t, ts.Create())
	assert.Nil(t, api.createCrawlerInput)
}

func TestCreateToleratesExisting(t *testing.T) {
	cfg := newTestQSConfig(t)
	api := &fakeGlue{createCrawlerErr: &glue_types.AlreadyExistsException{}}
	ts := New(Config{
		Logger:   zap.NewNop(),
		Stopc:    make(chan struct{}),
		QSConfig: cfg,
		GlueAPI:  api,
	})
	require.NoError(t, ts.Create())
	assert.True(t, cfg.Status.CrawlerCreated)
}

func TestDeleteToleratesMissing(t *testing.T) {
	cfg := newTestQSConfig(t)
	cfg.Status.CrawlerCreated = true
	api := &fakeGlue{deleteCrawlerErr: &glue_types.EntityNotFoundException{}}
	ts := New(Config{
		Logger:   zap.NewNop(),
		Stopc:    make(chan struct{}),
		QSConfig: cfg,
		GlueAPI:  api,
	})
	require.NoError(t, ts.Delete())
	assert.False(t, cfg.Status.CrawlerCreated)
}
