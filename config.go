package shuttle

import (
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/heroku/splunk-shuttle/keypath"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

const (
	// Version is the current version of the program / library
	Version = "0.3.0"
)

// Collector endpoints, relative to the base URL.
const (
	URIRaw   = "/services/collector/raw"
	URIEvent = "/services/collector/event"
)

// Default option values
const (
	DefaultFrontBuff     = 1000
	DefaultBackBuff      = 50
	DefaultTimeout       = 5 * time.Second
	DefaultWaitDuration  = 250 * time.Millisecond
	DefaultRetrySleep    = time.Second
	DefaultMaxAttempts   = 3
	DefaultNumBatchers   = 1
	DefaultNumOutlets    = 4
	DefaultMaxConns      = 4
	DefaultBatchSize     = 500
	DefaultVerbose       = false
	DefaultSkipVerify    = false
	DefaultSendRaw       = false
	DefaultLogToSyslog   = false
	DefaultStatsSource   = ""
	DefaultStatsInterval = 0 * time.Second
)

// AuthMode is how requests authenticate to the collector.
type AuthMode int

// Supported auth modes
const (
	AuthNone AuthMode = iota
	AuthBasic
	AuthToken
)

func (a AuthMode) String() string {
	switch a {
	case AuthBasic:
		return "basic"
	case AuthToken:
		return "token"
	}
	return "none"
}

// Config holds the various config options for a shuttle. The mapstructure
// tags are the property names accepted by ConfigFromProperties and the YAML
// config file.
type Config struct {
	LogsURL     string `mapstructure:"url"`
	Compress    string `mapstructure:"compress"`
	HTTPUser    string `mapstructure:"http_user"`
	HTTPPasswd  string `mapstructure:"http_passwd"`
	EventKey    string `mapstructure:"event_key"`
	SplunkToken string `mapstructure:"splunk_token"`
	AuthHeader  string `mapstructure:"auth_header"`
	SendRaw     bool   `mapstructure:"splunk_send_raw"`
	Channel     string `mapstructure:"channel"`
	SkipVerify  bool   `mapstructure:"tls_skip_verify"`

	Timeout      time.Duration `mapstructure:"timeout"`
	MaxConns     int           `mapstructure:"max_conns"`
	BatchSize    int           `mapstructure:"batch_size"`
	WaitDuration time.Duration `mapstructure:"wait"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetrySleep   time.Duration `mapstructure:"retry_sleep"`
	NumBatchers  int           `mapstructure:"num_batchers"`
	NumOutlets   int           `mapstructure:"num_outlets"`
	FrontBuff    int           `mapstructure:"front_buff"`
	BackBuff     int           `mapstructure:"back_buff"`

	Verbose       bool          `mapstructure:"verbose"`
	LogToSyslog   bool          `mapstructure:"log_to_syslog"`
	StatsSource   string        `mapstructure:"stats_source"`
	StatsInterval time.Duration `mapstructure:"stats_interval"`

	// ID is reported in the User-Agent, set by the command from the build.
	ID string `mapstructure:"-"`
}

// NewConfig returns a newly created Config, filled in with defaults
func NewConfig() Config {
	return Config{
		SendRaw:       DefaultSendRaw,
		SkipVerify:    DefaultSkipVerify,
		Timeout:       DefaultTimeout,
		MaxConns:      DefaultMaxConns,
		BatchSize:     DefaultBatchSize,
		WaitDuration:  DefaultWaitDuration,
		MaxAttempts:   DefaultMaxAttempts,
		RetrySleep:    DefaultRetrySleep,
		NumBatchers:   DefaultNumBatchers,
		NumOutlets:    DefaultNumOutlets,
		FrontBuff:     DefaultFrontBuff,
		BackBuff:      DefaultBackBuff,
		Verbose:       DefaultVerbose,
		LogToSyslog:   DefaultLogToSyslog,
		StatsSource:   DefaultStatsSource,
		StatsInterval: DefaultStatsInterval,
		ID:            Version,
	}
}

// ConfigFromProperties overlays props onto the defaults. Values may be given
// as strings the way plugin properties usually are ("on", "5s", "4").
func ConfigFromProperties(props map[string]interface{}) (Config, error) {
	c := NewConfig()
	if err := c.Merge(props); err != nil {
		return c, err
	}
	return c, nil
}

// Merge decodes props into c, leaving fields that aren't named untouched.
func (c *Config) Merge(props map[string]interface{}) error {
	d, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           c,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			switchHook,
		),
	})
	if err != nil {
		return err
	}
	return errors.Wrap(d.Decode(props), "decoding properties")
}

// switchHook accepts on/off and yes/no for booleans.
func switchHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Bool {
		return data, nil
	}
	switch strings.ToLower(strings.TrimSpace(data.(string))) {
	case "on", "yes", "true", "1":
		return true, nil
	case "off", "no", "false", "0", "":
		return false, nil
	}
	return nil, errors.Errorf("invalid boolean value %q", data)
}

// Validate checks the settings that can't be corrected later and fills in
// credentials from the URL when none were given explicitly.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Compress) {
	case "", "none", "off":
		c.Compress = ""
	case "gzip":
		c.Compress = "gzip"
	default:
		return errors.Errorf("unsupported compress option %q, only gzip is available", c.Compress)
	}

	if c.LogsURL == "" {
		return errors.New("no collector url given")
	}
	u, err := url.Parse(c.LogsURL)
	if err != nil {
		return errors.Wrap(err, "parsing collector url")
	}
	clean, user, passwd := scrubCredentials(u)
	if c.HTTPUser == "" && c.HTTPPasswd == "" {
		c.HTTPUser, c.HTTPPasswd = user, passwd
	}
	c.LogsURL = clean

	if c.EventKey != "" {
		if _, err := keypath.Parse(c.EventKey); err != nil {
			return err
		}
	}

	if c.MaxAttempts < 1 {
		return errors.New("max_attempts must be >= 1")
	}
	if c.MaxConns < 1 {
		return errors.New("max_conns must be >= 1")
	}
	return nil
}

// scrubCredentials splits basic auth credentials off the collector URL so that
// they never get logged.
func scrubCredentials(u *url.URL) (clean, username, password string) {
	scrubbed := *u
	scrubbed.User = nil
	clean = strings.TrimSuffix(scrubbed.String(), "/")
	if u.User != nil {
		username = u.User.Username()
		password, _ = u.User.Password()
	}
	return clean, username, password
}

// AuthorizationHeader is the static Authorization value, if any. An explicit
// auth_header wins over one derived from splunk_token.
func (c Config) AuthorizationHeader() string {
	if c.AuthHeader != "" {
		return c.AuthHeader
	}
	if c.SplunkToken != "" {
		return "Splunk " + c.SplunkToken
	}
	return ""
}

// Auth determines the auth mode: basic auth needs both a user and a password,
// otherwise a static header is used when there is one.
func (c Config) Auth() AuthMode {
	switch {
	case c.HTTPUser != "" && c.HTTPPasswd != "":
		return AuthBasic
	case c.AuthorizationHeader() != "":
		return AuthToken
	}
	return AuthNone
}

// Endpoint returns the collector URL for the configured mode.
func (c Config) Endpoint() string {
	if c.SendRaw {
		return c.LogsURL + URIRaw
	}
	return c.LogsURL + URIEvent
}

// Mode is the read-only view of the config used while flushing.
type Mode struct {
	SendRaw  bool
	EventKey *keypath.Path
	Compress bool
	Auth     AuthMode
}

// Shape is the output shape selected by the mode.
func (m Mode) Shape() OutputShape {
	return ShapeFor(m.SendRaw, m.EventKey != nil)
}

// Mode builds the flush mode from c.
func (c Config) Mode() (Mode, error) {
	m := Mode{
		SendRaw:  c.SendRaw,
		Compress: c.Compress == "gzip",
		Auth:     c.Auth(),
	}
	if c.EventKey != "" {
		p, err := keypath.Parse(c.EventKey)
		if err != nil {
			return m, err
		}
		m.EventKey = p
	}
	return m, nil
}
