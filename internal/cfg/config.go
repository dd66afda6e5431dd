package cfg

import (
	"fmt"
	"io"
	"strings"

	"github.com/pelletier/go-toml"
)

const (
	DefCommandLabel = "command:queue-for-merging"
	DefMergingLabel = "bot:merging"
	DefQueuedLabel  = "bot:queued"

	DefGithubWebhookEndpoint = "/listener/github"
	DefQueueListEndpoint     = "/queue"
	DefMetricsEndpoint       = "/metrics"

	DefLogFormat  = "logfmt"
	DefLogTimeKey = "time_iso8601"
	DefLogLevel   = "info"
)

// DefPassingCheckStates are the check states that count as passed when
// passing_check_states is not configured.
var DefPassingCheckStates = []string{"success", "neutral"}

type Config struct {
	HTTPListenAddr            string             `toml:"http_server_listen_addr"`
	HTTPSListenAddr           string             `toml:"https_server_listen_addr"`
	HTTPSCertFile             string             `toml:"https_ssl_cert_file"`
	HTTPSKeyFile              string             `toml:"https_ssl_key_file"`
	HTTPGithubWebhookEndpoint string             `toml:"github_webhook_endpoint"`
	HTTPQueueListEndpoint     string             `toml:"queue_list_endpoint"`
	HTTPMetricsEndpoint       string             `toml:"metrics_endpoint"`
	GithubWebHookSecret       string             `toml:"github_webhook_secret"`
	GithubAPIToken            string             `toml:"github_api_token"`
	LogFormat                 string             `toml:"log_format"`
	LogTimeKey                string             `toml:"log_time_key"`
	LogLevel                  string             `toml:"log_level"`
	DryRun                    bool               `toml:"dry_run"`
	PostComments              bool               `toml:"post_comments"`
	MergeQueue                MergeQueue         `toml:"merge_queue"`
	Repositories              []GithubRepository `toml:"repository"`
}

type GithubRepository struct {
	Owner          string `toml:"owner"`
	RepositoryName string `toml:"repository"`
}

func (r *GithubRepository) String() string {
	return fmt.Sprintf("%s/%s", r.Owner, r.RepositoryName)
}

// MergeQueue configures how pull requests are admitted to the queue and
// when their checks count as passed.
type MergeQueue struct {
	// ChecksToSkip are names of checks whose result is ignored when
	// deciding if a commit can be merged.
	ChecksToSkip []string `toml:"checks_to_skip"`
	// ChecksRequiredForAdmission are names of checks that must have
	// completed on a pull request before it is admitted to the queue.
	ChecksRequiredForAdmission []string `toml:"checks_required_for_admission"`
	// PassingCheckStates are the check states that do not block a merge.
	PassingCheckStates []string `toml:"passing_check_states"`
	// AdmissionFilterQuery is a jq query that is evaluated for the
	// webhook event that requested the admission, it must evaluate to
	// true for the request to be processed.
	AdmissionFilterQuery string `toml:"admission_filter_query"`

	CommandLabel string `toml:"command_label"`
	MergingLabel string `toml:"merging_label"`
	QueuedLabel  string `toml:"queued_label"`
}

// Default returns a configuration with all default values set.
func Default() *Config {
	var result Config
	result.setDefaults()

	return &result
}

func Load(reader io.Reader) (*Config, error) {
	var result Config

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	result.setDefaults()

	return &result, nil
}

func (c *Config) setDefaults() {
	if c.HTTPGithubWebhookEndpoint == "" {
		c.HTTPGithubWebhookEndpoint = DefGithubWebhookEndpoint
	}

	if c.HTTPQueueListEndpoint == "" {
		c.HTTPQueueListEndpoint = DefQueueListEndpoint
	}

	if c.HTTPMetricsEndpoint == "" {
		c.HTTPMetricsEndpoint = DefMetricsEndpoint
	}

	if c.LogFormat == "" {
		c.LogFormat = DefLogFormat
	}

	if c.LogTimeKey == "" {
		c.LogTimeKey = DefLogTimeKey
	}

	if c.LogLevel == "" {
		c.LogLevel = DefLogLevel
	}

	if len(c.MergeQueue.PassingCheckStates) == 0 {
		c.MergeQueue.PassingCheckStates = append([]string(nil), DefPassingCheckStates...)
	}

	if c.MergeQueue.CommandLabel == "" {
		c.MergeQueue.CommandLabel = DefCommandLabel
	}

	if c.MergeQueue.MergingLabel == "" {
		c.MergeQueue.MergingLabel = DefMergingLabel
	}

	if c.MergeQueue.QueuedLabel == "" {
		c.MergeQueue.QueuedLabel = DefQueuedLabel
	}
}

// ApplyEnv overrides configuration values with the values of the
// environment variables that are set.
// lookupEnv has the signature of os.LookupEnv.
func (c *Config) ApplyEnv(lookupEnv func(string) (string, bool)) {
	if v, ok := firstEnv(lookupEnv, "INPUT_GITHUB_TOKEN", "GITHUB_TOKEN"); ok {
		c.GithubAPIToken = v
	}

	if v, ok := lookupEnv("INPUT_CHECKS"); ok {
		c.MergeQueue.ChecksToSkip = SplitList(v)
	}

	if v, ok := firstEnv(lookupEnv, "INPUT_CHECKS_TO_WAIT", "INPUT_REQUIRE_TO_QUEUE"); ok {
		c.MergeQueue.ChecksRequiredForAdmission = SplitList(v)
	}
}

func firstEnv(lookupEnv func(string) (string, bool), keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := lookupEnv(k); ok && v != "" {
			return v, true
		}
	}

	return "", false
}

// SplitList splits a comma separated list, surrounding whitespace is
// removed from elements and empty elements are dropped.
func SplitList(in string) []string {
	var result []string

	for _, elem := range strings.Split(in, ",") {
		elem = strings.TrimSpace(elem)
		if elem == "" {
			continue
		}

		result = append(result, elem)
	}

	return result
}

// Marshal writes the configuration in TOML format to writer.
func (c *Config) Marshal(writer io.Writer) error {
	return toml.NewEncoder(writer).Encode(c)
}
