package embed

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
	input *aws_quicksight_v2.GetDashboardEmbedUrlInput
}

func (f *fakeQuickSight) GetDashboardEmbedUrl(ctx context.Context, input *aws_quicksight_v2.GetDashboardEmbedUrlInput, optFns ...func(*aws_quicksight_v2.Options)) (*aws_quicksight_v2.GetDashboardEmbedUrlOutput, error) {
	f.input = input
	return &aws_quicksight_v2.GetDashboardEmbedUrlOutput{
		EmbedUrl: aws_v2.String("https://us-west-2.quicksight.aws.amazon.com/embed/abc123"),
	}, nil
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

func TestBuildGetEmbedURLInput(t *testing.T) {
	cfg := newTestQSConfig(t)
	input := BuildGetEmbedURLInput(cfg)

	assert.Equal(t, "123456789012", aws_v2.ToString(input.AwsAccountId))
	assert.Equal(t, cfg.DashboardID, aws_v2.ToString(input.DashboardId))
	assert.Equal(t, qs_types.EmbeddingIdentityTypeIam, input.IdentityType)
	assert.Equal(t, int64(600), aws_v2.ToInt64(input.SessionLifetimeInMinutes))
	assert.False(t, input.UndoRedoDisabled)
	assert.False(t, input.ResetDisabled)

	// builder does not mutate config
	assert.Equal(t, BuildGetEmbedURLInput(cfg), input)
}

func TestCreateRecordsEmbedURL(t *testing.T) {
	cfg := newTestQSConfig(t)
	fake := &fakeQuickSight{}

	ts := New(Config{
		Logger:   zap.NewNop(),
		Stopc:    make(chan struct{}),
		QSConfig: cfg,
		QSAPI:    fake,
	})
	require.NoError(t, ts.Create())

	assert.Equal(t, "https://us-west-2.quicksight.aws.amazon.com/embed/abc123", cfg.Status.EmbedURL)
	require.NotNil(t, fake.input)
	assert.Equal(t, int64(600), aws_v2.ToInt64(fake.input.SessionLifetimeInMinutes))

	require.NoError(t, ts.Delete())
	assert.Empty(t, cfg.Status.EmbedURL)
}
