// Package qsconfig configures the QuickSight dashboard pipeline.
package qsconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-quicksight-tester/pkg/cronutil"
	"github.com/aws/aws-quicksight-tester/pkg/logutil"
	"github.com/aws/aws-quicksight-tester/pkg/randutil"
	"github.com/aws/aws-quicksight-tester/pkg/timeutil"
	"sigs.k8s.io/yaml"
)

// Config defines the QuickSight pipeline configuration.
// Every identifier the pipeline touches is explicit here; nothing is
// hardcoded in the call sites.
type Config struct {
	mu *sync.RWMutex

	// Name is the tag prefix used for generated resource names.
	Name string `json:"name,omitempty"`
	// ConfigPath is the configuration file path.
	// The tester is expected to update this file with the latest status.
	ConfigPath string `json:"config-path,omitempty"`

	// AWSAccountID is the AWS account ID. If empty, it is discovered
	// from the STS caller identity on session load.
	AWSAccountID string `json:"aws-account-id,omitempty"`
	// Partition is an AWS partition (default "aws").
	Partition string `json:"partition,omitempty"`
	// Region is the AWS geographic area for all resources.
	Region string `json:"region,omitempty"`
	// ResolverURL is a custom AWS endpoint resolver URL, for tests
	// against a local endpoint.
	ResolverURL string `json:"resolver-url,omitempty"`
	// SigningName is the API signing name when ResolverURL is set.
	SigningName string `json:"signing-name,omitempty"`

	// LogLevel configures log level. Only supports debug, info, warn, error, panic, or fatal. Default 'info'.
	LogLevel string `json:"log-level"`
	// LogOutputs is a list of log outputs. Valid values are 'stderr', 'stdout', or file names.
	LogOutputs []string `json:"log-outputs,omitempty"`
	// DebugAPICalls is true to log all AWS API call debugging messages.
	DebugAPICalls bool `json:"debug-api-calls"`

	// OnFailureDelete is true to delete all created resources when Up fails.
	OnFailureDelete bool `json:"on-failure-delete"`

	// S3Bucket is the bucket holding the raw sales data.
	S3Bucket string `json:"s3-bucket,omitempty"`
	// S3DataPrefix is the key prefix the crawler scans.
	S3DataPrefix string `json:"s3-data-prefix,omitempty"`
	// SeedData is true to upload a small sample CSV under the data
	// prefix so a first crawl has something to scan.
	SeedData bool `json:"seed-data"`

	// PolicyName is the name of the data access managed policy.
	PolicyName string `json:"policy-name,omitempty"`
	// RoleName is the name of the role the crawler and QuickSight assume.
	RoleName string `json:"role-name,omitempty"`

	// GlueDatabaseName is the catalog database the crawler writes to.
	GlueDatabaseName string `json:"glue-database-name,omitempty"`
	// CrawlerName is the Glue crawler name.
	CrawlerName string `json:"crawler-name,omitempty"`
	// CrawlerSchedule is the crawler cron schedule, e.g. "cron(0 0 * * ? *)".
	CrawlerSchedule string `json:"crawler-schedule,omitempty"`
	// CrawlerStart is true to start the crawler once after creation and
	// wait for it to come back to READY.
	CrawlerStart bool `json:"crawler-start"`
	// CrawlerWaitTimeout bounds the poll for the crawler to settle.
	CrawlerWaitTimeout time.Duration `json:"crawler-wait-timeout,omitempty"`

	// DataSourceARN is the QuickSight data source backing the dataset.
	DataSourceARN string `json:"data-source-arn,omitempty"`
	// DataSetID is the QuickSight dataset ID.
	DataSetID string `json:"dataset-id,omitempty"`
	// DataSetName is the QuickSight dataset display name.
	DataSetName string `json:"dataset-name,omitempty"`
	// RefreshTimeOfDay is the daily incremental refresh time "HH:MM" (UTC unless RefreshTimezone set).
	RefreshTimeOfDay string `json:"refresh-time-of-day,omitempty"`
	// RefreshTimezone is the refresh schedule timezone.
	RefreshTimezone string `json:"refresh-timezone,omitempty"`

	// AnalysisID is the QuickSight analysis ID.
	AnalysisID string `json:"analysis-id,omitempty"`
	// AnalysisName is the QuickSight analysis display name.
	AnalysisName string `json:"analysis-name,omitempty"`
	// UserPrincipalARN is the QuickSight user granted on the analysis.
	UserPrincipalARN string `json:"user-principal-arn,omitempty"`
	// GroupPrincipalARN is the QuickSight group granted on the dashboard.
	GroupPrincipalARN string `json:"group-principal-arn,omitempty"`

	// DashboardID is the QuickSight dashboard ID.
	DashboardID string `json:"dashboard-id,omitempty"`
	// DashboardName is the QuickSight dashboard display name.
	DashboardName string `json:"dashboard-name,omitempty"`
	// TemplateARN is the template the dashboard is published from.
	TemplateARN string `json:"template-arn,omitempty"`
	// VersionDescription describes the published dashboard version.
	VersionDescription string `json:"version-description,omitempty"`

	// SessionLifetimeMinutes is the embed session lifetime, 15 to 600.
	SessionLifetimeMinutes int64 `json:"session-lifetime-minutes,omitempty"`
	// UndoRedoDisabled is true to hide the embed undo/redo button.
	UndoRedoDisabled bool `json:"undo-redo-disabled"`
	// ResetDisabled is true to hide the embed reset button.
	ResetDisabled bool `json:"reset-disabled"`

	// Status is the pipeline status, updated as steps complete.
	// Read only to 'Config' struct users.
	Status *Status `json:"status,omitempty"`
}

// Status records what the pipeline has created so far. Later steps
// consume the recorded ARNs instead of re-deriving placeholders.
type Status struct {
	// UpdatedAt is the timestamp when the configuration has been updated.
	UpdatedAt time.Time `json:"updated-at,omitempty" read-only:"true"`

	AWSCallerARN string `json:"aws-caller-arn,omitempty" read-only:"true"`

	PolicyARN         string             `json:"policy-arn,omitempty" read-only:"true"`
	RoleARN           string             `json:"role-arn,omitempty" read-only:"true"`
	RoleCreated       bool               `json:"role-created" read-only:"true"`
	TimeFrameRole     timeutil.TimeFrame `json:"time-frame-role,omitempty" read-only:"true"`
	BucketCreated     bool               `json:"bucket-created" read-only:"true"`
	CrawlerCreated    bool               `json:"crawler-created" read-only:"true"`
	CrawlerState      string             `json:"crawler-state,omitempty" read-only:"true"`
	TimeFrameCrawler  timeutil.TimeFrame `json:"time-frame-crawler,omitempty" read-only:"true"`
	DataSetCreated    bool               `json:"dataset-created" read-only:"true"`
	DataSetARN        string             `json:"dataset-arn,omitempty" read-only:"true"`
	TimeFrameDataSet  timeutil.TimeFrame `json:"time-frame-dataset,omitempty" read-only:"true"`
	AnalysisCreated   bool               `json:"analysis-created" read-only:"true"`
	AnalysisARN       string             `json:"analysis-arn,omitempty" read-only:"true"`
	TimeFrameAnalysis timeutil.TimeFrame `json:"time-frame-analysis,omitempty" read-only:"true"`
	DashboardCreated  bool               `json:"dashboard-created" read-only:"true"`
	DashboardARN      string             `json:"dashboard-arn,omitempty" read-only:"true"`
	DashboardVersion  string             `json:"dashboard-version-arn,omitempty" read-only:"true"`
	TimeFrameDash     timeutil.TimeFrame `json:"time-frame-dashboard,omitempty" read-only:"true"`
	// EmbedURL is a signed URL; treat as a credential.
	EmbedURL string `json:"embed-url,omitempty" read-only:"true"`
}

// NewDefault returns a copy of the default configuration.
func NewDefault() *Config {
	name := fmt.Sprintf("qs-%s-%s", timeutil.GetTS(10), randutil.String(5))
	return &Config{
		mu: new(sync.RWMutex),

		Name: name,

		Partition: "aws",
		Region:    "us-west-2",

		LogLevel:   logutil.DefaultLogLevel,
		LogOutputs: []string{"stderr"},

		S3DataPrefix: "sales-data/",

		GlueDatabaseName:   "sales_db",
		CrawlerName:        "sales_data_crawler",
		CrawlerSchedule:    "cron(0 0 * * ? *)", // daily at midnight
		CrawlerWaitTimeout: 20 * time.Minute,

		DataSetID:        "sales_dataset",
		DataSetName:      "Sales Analysis Dataset",
		RefreshTimeOfDay: "00:00",
		RefreshTimezone:  "UTC",

		AnalysisID:   "sales_analysis",
		AnalysisName: "Sales Analysis",

		DashboardID:        "sales_dashboard",
		DashboardName:      "Sales Dashboard",
		VersionDescription: "Initial version",

		SessionLifetimeMinutes: 600,
		UndoRedoDisabled:       false,
		ResetDisabled:          false,

		Status: &Status{},
	}
}

// Load loads configuration from YAML.
//
// Do not set default values in this function.
// "ValidateAndSetDefaults" must be called separately,
// to prevent overwriting previous data when loaded from disks.
func Load(p string) (cfg *Config, err error) {
	var d []byte
	d, err = os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	cfg = new(Config)
	if err = yaml.Unmarshal(d, cfg); err != nil {
		return nil, err
	}

	cfg.mu = new(sync.RWMutex)
	if cfg.Status == nil {
		cfg.Status = &Status{}
	}

	cfg.ConfigPath = p
	if cfg.ConfigPath, err = filepath.Abs(p); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Sync persists current configuration and states to disk.
func (cfg *Config) Sync() (err error) {
	cfg.mu.Lock()
	defer cfg.mu.Unlock()

	if !filepath.IsAbs(cfg.ConfigPath) {
		if cfg.ConfigPath, err = filepath.Abs(cfg.ConfigPath); err != nil {
			return err
		}
	}
	cfg.Status.UpdatedAt = time.Now().UTC()

	var d []byte
	if d, err = yaml.Marshal(cfg); err != nil {
		return err
	}
	return os.WriteFile(cfg.ConfigPath, d, 0600)
}

// DataPath returns the S3 path the crawler scans.
func (cfg *Config) DataPath() string {
	return fmt.Sprintf("s3://%s/%s", cfg.S3Bucket, cfg.S3DataPrefix)
}

// ResolveDataSetARN returns the dataset ARN recorded by the dataset
// step, falling back to the deterministic ARN layout.
func (cfg *Config) ResolveDataSetARN() string {
	if cfg.Status.DataSetARN != "" {
		return cfg.Status.DataSetARN
	}
	return fmt.Sprintf("arn:%s:quicksight:%s:%s:dataset/%s",
		cfg.Partition, cfg.Region, cfg.AWSAccountID, cfg.DataSetID)
}

// ValidateAndSetDefaults returns an error for invalid configurations.
// And updates empty fields with default values.
// At the end, it writes populated YAML to the config path.
func (cfg *Config) ValidateAndSetDefaults() error {
	if cfg.mu == nil {
		cfg.mu = new(sync.RWMutex)
	}
	if cfg.Region == "" {
		return errors.New("Region is empty")
	}
	if cfg.Partition == "" {
		cfg.Partition = "aws"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = logutil.DefaultLogLevel
	}
	if len(cfg.LogOutputs) == 0 {
		cfg.LogOutputs = []string{"stderr"}
	}
	if cfg.Name == "" {
		cfg.Name = fmt.Sprintf("qs-%s-%s", timeutil.GetTS(10), randutil.String(5))
	}

	if cfg.S3Bucket == "" {
		return errors.New("S3Bucket is empty")
	}
	if cfg.S3DataPrefix == "" {
		cfg.S3DataPrefix = "sales-data/"
	}
	if cfg.PolicyName == "" {
		cfg.PolicyName = cfg.Name + "-data-access-policy"
	}
	if cfg.RoleName == "" {
		cfg.RoleName = cfg.Name + "-crawler-role"
	}

	if cfg.GlueDatabaseName == "" {
		cfg.GlueDatabaseName = "sales_db"
	}
	if cfg.CrawlerName == "" {
		cfg.CrawlerName = "sales_data_crawler"
	}
	if cfg.CrawlerSchedule == "" {
		cfg.CrawlerSchedule = "cron(0 0 * * ? *)"
	}
	if err := cronutil.Validate(cfg.CrawlerSchedule); err != nil {
		return fmt.Errorf("invalid CrawlerSchedule (%v)", err)
	}
	if cfg.CrawlerWaitTimeout == 0 {
		cfg.CrawlerWaitTimeout = 20 * time.Minute
	}

	if cfg.DataSourceARN == "" {
		return errors.New("DataSourceARN is empty")
	}
	if cfg.DataSetID == "" {
		cfg.DataSetID = "sales_dataset"
	}
	if cfg.DataSetName == "" {
		cfg.DataSetName = "Sales Analysis Dataset"
	}
	if cfg.RefreshTimeOfDay == "" {
		cfg.RefreshTimeOfDay = "00:00"
	}
	if cfg.RefreshTimezone == "" {
		cfg.RefreshTimezone = "UTC"
	}

	if cfg.AnalysisID == "" {
		cfg.AnalysisID = "sales_analysis"
	}
	if cfg.AnalysisName == "" {
		cfg.AnalysisName = "Sales Analysis"
	}
	if cfg.UserPrincipalARN == "" {
		return errors.New("UserPrincipalARN is empty")
	}
	if cfg.GroupPrincipalARN == "" {
		return errors.New("GroupPrincipalARN is empty")
	}

	if cfg.DashboardID == "" {
		cfg.DashboardID = "sales_dashboard"
	}
	if cfg.DashboardName == "" {
		cfg.DashboardName = "Sales Dashboard"
	}
	if cfg.TemplateARN == "" {
		return errors.New("TemplateARN is empty")
	}
	if cfg.VersionDescription == "" {
		cfg.VersionDescription = "Initial version"
	}

	if cfg.SessionLifetimeMinutes == 0 {
		cfg.SessionLifetimeMinutes = 600
	}
	if cfg.SessionLifetimeMinutes < 15 || cfg.SessionLifetimeMinutes > 600 {
		return fmt.Errorf("SessionLifetimeMinutes %d out of range [15, 600]", cfg.SessionLifetimeMinutes)
	}

	if cfg.Status == nil {
		cfg.Status = &Status{}
	}

	if cfg.ConfigPath == "" {
		f, err := os.CreateTemp(os.TempDir(), "aws-quicksight-tester-*.yaml")
		if err != nil {
			return err
		}
		cfg.ConfigPath, _ = filepath.Abs(f.Name())
		f.Close()
	}

	return cfg.Sync()
}

const envPfx = "AWS_QUICKSIGHT_TESTER_"

// UpdateFromEnvs updates fields from environmental variables.
func (cfg *Config) UpdateFromEnvs() error {
	cc := *cfg

	tp, vv := reflect.TypeOf(&cc).Elem(), reflect.ValueOf(&cc).Elem()
	for i := 0; i < tp.NumField(); i++ {
		jv := tp.Field(i).Tag.Get("json")
		if jv == "" {
			continue
		}
		jv = strings.Replace(jv, ",omitempty", "", -1)
		jv = strings.ToUpper(strings.Replace(jv, "-", "_", -1))
		env := envPfx + jv
		sv := os.Getenv(env)
		if sv == "" {
			continue
		}
		fieldName := tp.Field(i).Name

		switch vv.Field(i).Type().Kind() {
		case reflect.String:
			vv.Field(i).SetString(sv)

		case reflect.Bool:
			bb, err := strconv.ParseBool(sv)
			if err != nil {
				return fmt.Errorf("failed to parse %q (%q, %v)", sv, env, err)
			}
			vv.Field(i).SetBool(bb)

		case reflect.Int, reflect.Int32, reflect.Int64:
			if fieldName == "CrawlerWaitTimeout" {
				dv, err := time.ParseDuration(sv)
				if err != nil {
					return fmt.Errorf("failed to parse %q (%q, %v)", sv, env, err)
				}
				vv.Field(i).SetInt(int64(dv))
				continue
			}
			iv, err := strconv.ParseInt(sv, 10, 64)
			if err != nil {
				return fmt.Errorf("failed to parse %q (%q, %v)", sv, env, err)
			}
			vv.Field(i).SetInt(iv)

		case reflect.Slice:
			ss := strings.Split(sv, ",")
			slice := reflect.MakeSlice(reflect.TypeOf([]string{}), len(ss), len(ss))
			for j := range ss {
				slice.Index(j).SetString(ss[j])
			}
			vv.Field(i).Set(slice)

		case reflect.Ptr:
			// status is read-only to users

		default:
			return fmt.Errorf("%q (%v) is not supported as an env", env, vv.Field(i).Type())
		}
	}
	*cfg = cc

	return nil
}
