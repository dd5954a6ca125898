package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/maheshrc27/reshare/internal/apperrors"
)

const (
	StorageLocal = "local"
	StorageR2    = "r2"
)

// PostTaskTimeout bounds one publish attempt in the worker.
const PostTaskTimeout = 10 * time.Minute

type R2 struct {
	AccountID  string `env:"R2_ACCOUNT_ID"`
	AccessKey  string `env:"R2_ACCESS_KEY"`
	SecretKey  string `env:"R2_SECRET_KEY"`
	BucketName string `env:"R2_BUCKET_NAME"`
	PublicURL  string `env:"R2_PUBLIC_URL"`
}

type Instagram struct {
	ClientID     string `env:"INSTAGRAM_CLIENT_ID"`
	ClientSecret string `env:"INSTAGRAM_CLIENT_SECRET"`
	RedirectURI  string `env:"INSTAGRAM_REDIRECT_URI"`
	GraphURL     string `env:"INSTAGRAM_GRAPH_URL" envDefault:"https://graph.instagram.com"`
	OAuthURL     string `env:"INSTAGRAM_OAUTH_URL" envDefault:"https://api.instagram.com"`
	APIVersion   string `env:"INSTAGRAM_API_VERSION" envDefault:"v21.0"`

	// Legacy single-account mode, used when a tenant has no active account.
	LegacyAccessToken string `env:"INSTAGRAM_ACCESS_TOKEN"`
	LegacyAccountID   string `env:"INSTAGRAM_ACCOUNT_ID"`
}

type Google struct {
	ClientID     string `env:"GOOGLE_CLIENT_ID"`
	ClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	RedirectURI  string `env:"GOOGLE_REDIRECT_URI"`
	// DriveFolderID is the folder indexed for tenants; empty means My Drive.
	DriveFolderID string `env:"GOOGLE_DRIVE_FOLDER_ID"`
}

type Queue struct {
	MaxRetries     int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryBaseDelay time.Duration `env:"RETRY_BASE_DELAY" envDefault:"1m"`
	PostsPerWindow int           `env:"POSTS_PER_WINDOW" envDefault:"25"`
	RateWindow     time.Duration `env:"RATE_WINDOW" envDefault:"24h"`
	OverdueDelta   time.Duration `env:"OVERDUE_DELTA" envDefault:"24h"`
	// ProcessingTimeout is how long an item may stay processing before the
	// dispatcher assumes its task was lost and retries it.
	ProcessingTimeout time.Duration `env:"PROCESSING_TIMEOUT" envDefault:"15m"`
	DispatchSpec   string        `env:"DISPATCH_SPEC" envDefault:"@every 1m"`
	OverdueSpec    string        `env:"OVERDUE_SWEEP_SPEC" envDefault:"@every 15m"`
}

type Tokens struct {
	StateTTL      time.Duration `env:"STATE_TOKEN_TTL" envDefault:"600s"`
	RefreshBuffer time.Duration `env:"REFRESH_BUFFER" envDefault:"168h"`
	RefreshSpec   string        `env:"TOKEN_REFRESH_SPEC" envDefault:"@every 10m"`
}

type Backfill struct {
	PageSize int `env:"BACKFILL_PAGE_SIZE" envDefault:"25"`
	MaxPages int `env:"BACKFILL_MAX_PAGES" envDefault:"100"`
}

type Config struct {
	AppEnv         string `env:"APP_ENV" envDefault:"production"`
	ListenAddr     string `env:"LISTEN_ADDR" envDefault:":3000"`
	PostgresURI    string `env:"POSTGRES_URI"`
	RedisURI       string `env:"REDIS_URI"`
	MigrationsDir  string `env:"MIGRATIONS_DIR" envDefault:"migrations"`
	FrontendURL    string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`
	SecretKey      string `env:"SECRET_KEY"`
	JWTSecret      string `env:"JWT_SECRET"`
	CookieName     string `env:"COOKIE_NAME" envDefault:"reshare_session"`
	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"local"`
	MediaDir       string `env:"MEDIA_DIR" envDefault:"media"`
	LibraryDir     string `env:"LIBRARY_DIR"`

	R2        R2
	Instagram Instagram
	Google    Google
	Queue     Queue
	Tokens    Tokens
	Backfill  Backfill
}

// LoadConfig parses the environment and validates the result once.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, apperrors.New(apperrors.ErrConfiguration, "parse env", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	required := map[string]string{
		"POSTGRES_URI": c.PostgresURI,
		"REDIS_URI":    c.RedisURI,
		"SECRET_KEY":   c.SecretKey,
		"JWT_SECRET":   c.JWTSecret,
	}
	for name, value := range required {
		if value == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}
	if c.SecretKey != "" && len(c.SecretKey) < 16 {
		errs = append(errs, errors.New("SECRET_KEY must be at least 16 characters"))
	}

	// cors refuses a wildcard origin once credentials are allowed
	if origins := strings.TrimSpace(c.FrontendURL); origins == "" || strings.Contains(origins, "*") {
		errs = append(errs, fmt.Errorf("FRONTEND_URL %q must list explicit origins", c.FrontendURL))
	}

	switch c.StorageBackend {
	case StorageLocal:
		if c.MediaDir == "" {
			errs = append(errs, errors.New("MEDIA_DIR is required for local storage"))
		}
	case StorageR2:
		if c.R2.AccountID == "" || c.R2.AccessKey == "" || c.R2.SecretKey == "" || c.R2.BucketName == "" || c.R2.PublicURL == "" {
			errs = append(errs, errors.New("R2_ACCOUNT_ID, R2_ACCESS_KEY, R2_SECRET_KEY, R2_BUCKET_NAME and R2_PUBLIC_URL are required for r2 storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND %q must be %q or %q", c.StorageBackend, StorageLocal, StorageR2))
	}

	if (c.Instagram.LegacyAccessToken == "") != (c.Instagram.LegacyAccountID == "") {
		errs = append(errs, errors.New("INSTAGRAM_ACCESS_TOKEN and INSTAGRAM_ACCOUNT_ID must be set together"))
	}

	errs = appendRange(errs, "MAX_RETRIES", c.Queue.MaxRetries, 1, 10)
	errs = appendRange(errs, "POSTS_PER_WINDOW", c.Queue.PostsPerWindow, 1, 100)
	errs = appendRange(errs, "BACKFILL_PAGE_SIZE", c.Backfill.PageSize, 1, 100)
	errs = appendRange(errs, "BACKFILL_MAX_PAGES", c.Backfill.MaxPages, 1, 1000)

	if c.Tokens.StateTTL < time.Minute || c.Tokens.StateTTL > time.Hour {
		errs = append(errs, fmt.Errorf("STATE_TOKEN_TTL %s must be between 1m and 1h", c.Tokens.StateTTL))
	}
	if c.Tokens.RefreshBuffer <= 0 {
		errs = append(errs, errors.New("REFRESH_BUFFER must be positive"))
	}
	if c.Queue.RetryBaseDelay <= 0 || c.Queue.RateWindow <= 0 || c.Queue.OverdueDelta <= 0 {
		errs = append(errs, errors.New("RETRY_BASE_DELAY, RATE_WINDOW and OVERDUE_DELTA must be positive"))
	}

	if c.Queue.ProcessingTimeout <= PostTaskTimeout {
		errs = append(errs, fmt.Errorf("PROCESSING_TIMEOUT %s must exceed the %s post task timeout", c.Queue.ProcessingTimeout, PostTaskTimeout))
	}

	if len(errs) > 0 {
		return apperrors.New(apperrors.ErrConfiguration, "validate", errors.Join(errs...))
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func appendRange(errs []error, name string, value, min, max int) []error {
	if value < min || value > max {
		return append(errs, fmt.Errorf("%s=%d must be between %d and %d", name, value, min, max))
	}
	return errs
}
