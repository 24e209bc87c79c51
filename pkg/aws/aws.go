// Package aws implements wrappers for AWS API calls.
package aws

import (
	"context"
	"errors"
	"fmt"
	"time"

	aws_v2 "github.com/aws/aws-sdk-go-v2/aws"
	config_v2 "github.com/aws/aws-sdk-go-v2/config"
	aws_sts_v2 "github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go/logging"
	"go.uber.org/zap"
)

// Config defines a top-level AWS API configuration to load a session.
type Config struct {
	// Logger is the log object.
	Logger *zap.Logger

	// DebugAPICalls is true to log all AWS API call debugging messages.
	DebugAPICalls bool

	// Partition is an AWS partition (default "aws").
	Partition string
	// Region is a separate AWS geographic area.
	Region string

	// ResolverURL is a custom resolver URL.
	ResolverURL string
	// SigningName is the API signing name.
	SigningName string
}

// New creates a new AWS session and returns the caller identity.
// Specify a custom endpoint for tests.
func New(cfg *Config) (awsCfg aws_v2.Config, stsOutput *aws_sts_v2.GetCallerIdentityOutput, err error) {
	if cfg == nil {
		return aws_v2.Config{}, nil, errors.New("got empty config")
	}
	if cfg.Logger == nil {
		return aws_v2.Config{}, nil, fmt.Errorf("missing logger")
	}
	if cfg.Partition == "" {
		return aws_v2.Config{}, nil, fmt.Errorf("missing partition")
	}
	if cfg.Region == "" {
		return aws_v2.Config{}, nil, fmt.Errorf("missing region")
	}
	if cfg.ResolverURL != "" && cfg.SigningName == "" {
		return aws_v2.Config{}, nil, fmt.Errorf("got empty signing name for resolver %q", cfg.ResolverURL)
	}

	optFns := []func(*config_v2.LoadOptions) error{
		(func(*config_v2.LoadOptions) error)(config_v2.WithRegion(cfg.Region)),
		(func(*config_v2.LoadOptions) error)(config_v2.WithLogger(toLogger(cfg.Logger))),
	}
	if cfg.DebugAPICalls {
		lvl := aws_v2.LogSigning |
			aws_v2.LogRetries |
			aws_v2.LogRequest |
			aws_v2.LogRequestWithBody |
			aws_v2.LogResponse |
			aws_v2.LogResponseWithBody
		optFns = append(optFns, (func(*config_v2.LoadOptions) error)(config_v2.WithClientLogMode(lvl)))
	}

	if cfg.ResolverURL != "" {
		cfg.Logger.Info(
			"setting endpoint resolver for all services",
			zap.String("resolver-url", cfg.ResolverURL),
			zap.String("signing-name", cfg.SigningName),
		)
		opt := config_v2.WithEndpointResolver(aws_v2.EndpointResolverFunc(func(service string, region string) (aws_v2.Endpoint, error) {
			return aws_v2.Endpoint{
				URL:           cfg.ResolverURL,
				SigningName:   cfg.SigningName,
				SigningRegion: region,
				PartitionID:   cfg.Partition,
				Source:        aws_v2.EndpointSourceCustom,
			}, nil
		}))
		optFns = append(optFns, opt)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	awsCfg, err = config_v2.LoadDefaultConfig(ctx, optFns...)
	cancel()
	if err != nil {
		return aws_v2.Config{}, nil, fmt.Errorf("failed to load config %v", err)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	stsOutput, err = aws_sts_v2.NewFromConfig(awsCfg).GetCallerIdentity(ctx, &aws_sts_v2.GetCallerIdentityInput{})
	cancel()
	if err != nil {
		cfg.Logger.Warn("failed to get caller identity", zap.Error(err))
		return awsCfg, nil, err
	}
	cfg.Logger.Info("loaded AWS config",
		zap.String("region", cfg.Region),
		zap.String("account-id", aws_v2.ToString(stsOutput.Account)),
		zap.String("caller-arn", aws_v2.ToString(stsOutput.Arn)),
	)

	return awsCfg, stsOutput, nil
}

// toLogger converts *zap.Logger to logging.Logger.
func toLogger(lg *zap.Logger) logging.Logger {
	return &zapLogger{lg}
}

type zapLogger struct {
	*zap.Logger
}

func (lg *zapLogger) Logf(c logging.Classification, format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	switch c {
	case logging.Warn:
		lg.Warn(msg)
	case logging.Debug:
		lg.Debug(msg)
	}
}
