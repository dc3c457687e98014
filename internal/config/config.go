package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yml
var defaultsYAML []byte

const (
	ZeroResultsSkip  = "skip"
	ZeroResultsAbort = "abort"

	OTPSourcePrompt = "prompt"
	OTPSourceIMAP   = "imap"
)

type Config struct {
	Site      Site      `yaml:"site"`
	Browser   Browser   `yaml:"browser"`
	Timing    Timing    `yaml:"timing"`
	Policy    Policy    `yaml:"policy"`
	Export    Export    `yaml:"export"`
	Store     Store     `yaml:"store"`
	Log       Log       `yaml:"log"`
	OTP       OTP       `yaml:"otp"`
	Selectors Selectors `yaml:"selectors"`
}

type Site struct {
	URL                 string   `yaml:"url"`
	Platform            string   `yaml:"platform"`
	Email               string   `yaml:"email"`
	Location            string   `yaml:"location"`
	Keywords            []string `yaml:"keywords"`
	InitialViewHeading  string   `yaml:"initial_view_heading"`
	PostedMarker        string   `yaml:"posted_marker"`
	SalarySuffix        string   `yaml:"salary_suffix"`
	CardIDPrefix        string   `yaml:"card_id_prefix"`
	NextHiddenAttribute string   `yaml:"next_hidden_attribute"`
}

type Browser struct {
	Engine       string `yaml:"engine"`
	Headless     bool   `yaml:"headless"`
	ExecPath     string `yaml:"exec_path"`
	UserAgent    string `yaml:"user_agent"`
	Lang         string `yaml:"lang"`
	WebDriverURL string `yaml:"webdriver_url"`
}

type Timing struct {
	LongWait        time.Duration `yaml:"long_wait"`
	ShortWait       time.Duration `yaml:"short_wait"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	FallbackSleep   time.Duration `yaml:"fallback_sleep"`
	KeystrokeDelay  time.Duration `yaml:"keystroke_delay"`
	ConfirmInterval time.Duration `yaml:"confirm_interval"`
	PostLoginPause  time.Duration `yaml:"post_login_pause"`
	CardInterval    time.Duration `yaml:"card_interval"`
}

type Policy struct {
	ZeroResults  string `yaml:"zero_results"`
	OTPAttempts  int    `yaml:"otp_attempts"`
	ConfirmPolls int    `yaml:"confirm_polls"`
}

type Export struct {
	Dir    string `yaml:"dir"`
	Prefix string `yaml:"prefix"`
	Batch  bool   `yaml:"batch"`
}

type Store struct {
	Path string `yaml:"path"`
}

type Log struct {
	Dir     string `yaml:"dir"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
	Level   string `yaml:"level"`
}

type OTP struct {
	Source          string        `yaml:"source"`
	IMAPAddr        string        `yaml:"imap_addr"`
	Username        string        `yaml:"username"`
	Mailbox         string        `yaml:"mailbox"`
	SubjectContains string        `yaml:"subject_contains"`
	Timeout         time.Duration `yaml:"timeout"`
	PollEvery       time.Duration `yaml:"poll_every"`
}

// Default returns the embedded defaults.
func Default() Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		panic(fmt.Sprintf("embedded defaults.yml: %v", err))
	}
	return cfg
}

// Load layers the embedded defaults, an optional YAML file, a .env file and
// the process environment, in that order.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	// a missing .env is normal outside development
	_ = godotenv.Load()
	applyEnv(&cfg, os.Getenv)
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("JOBSTREET_URL", &cfg.Site.URL)
	str("JOBSTREET_EMAIL", &cfg.Site.Email)
	str("JOBSTREET_LOCATION", &cfg.Site.Location)
	str("JOBSTREET_BROWSER", &cfg.Browser.Engine)
	str("CHROME_PATH", &cfg.Browser.ExecPath)
	str("JOBSTREET_WEBDRIVER_URL", &cfg.Browser.WebDriverURL)
	str("JOBSTREET_EXPORT_DIR", &cfg.Export.Dir)
	str("JOBSTREET_DB", &cfg.Store.Path)
	str("JOBSTREET_OTP_SOURCE", &cfg.OTP.Source)
	str("JOBSTREET_IMAP_ADDR", &cfg.OTP.IMAPAddr)
	str("JOBSTREET_IMAP_USERNAME", &cfg.OTP.Username)

	if v := getenv("JOBSTREET_KEYWORDS"); strings.TrimSpace(v) != "" {
		cfg.Site.Keywords = SplitKeywords(v)
	}
	if v := getenv("JOBSTREET_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Browser.Headless = b
		}
	}
}

// SplitKeywords splits a comma separated list, dropping blanks.
func SplitKeywords(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func Validate(cfg Config) error {
	var errs []string

	if strings.TrimSpace(cfg.Site.URL) == "" {
		errs = append(errs, "site.url is required")
	}
	if strings.TrimSpace(cfg.Site.Email) == "" {
		errs = append(errs, "site.email is required (-email or JOBSTREET_EMAIL)")
	}
	if len(cfg.Site.Keywords) == 0 {
		errs = append(errs, "site.keywords must have at least 1 keyword")
	}
	switch cfg.Policy.ZeroResults {
	case ZeroResultsSkip, ZeroResultsAbort:
	default:
		errs = append(errs, fmt.Sprintf("policy.zero_results must be %q or %q", ZeroResultsSkip, ZeroResultsAbort))
	}
	if cfg.Policy.OTPAttempts < 1 {
		errs = append(errs, "policy.otp_attempts must be >= 1")
	}
	if cfg.Policy.ConfirmPolls < 1 {
		errs = append(errs, "policy.confirm_polls must be >= 1")
	}
	if cfg.Timing.LongWait <= 0 || cfg.Timing.ShortWait <= 0 || cfg.Timing.PollInterval <= 0 {
		errs = append(errs, "timing.long_wait, short_wait and poll_interval must be > 0")
	}
	switch cfg.Browser.Engine {
	case "chrome", "firefox":
	default:
		errs = append(errs, "browser.engine must be chrome or firefox")
	}
	switch cfg.OTP.Source {
	case OTPSourcePrompt:
	case OTPSourceIMAP:
		if cfg.OTP.IMAPAddr == "" || cfg.OTP.Username == "" {
			errs = append(errs, "otp.imap_addr and otp.username are required when otp.source=imap")
		}
	default:
		errs = append(errs, "otp.source must be prompt or imap")
	}
	errs = append(errs, cfg.Selectors.validate()...)

	if len(errs) > 0 {
		return errors.New("config validation failed:\n- " + strings.Join(errs, "\n- "))
	}
	return nil
}
