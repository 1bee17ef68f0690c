package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const envPrefix = "BUSTRACK"

type HTTPConfig struct {
	Host         string
	Port         int `validate:"gte=0,lte=65535"`
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Driver          string `validate:"oneof=postgres memory"`
	DSN             string `validate:"required_if=Driver postgres"`
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	Group    string
	Consumer string
}

type SessionConfig struct {
	Secret     string        `validate:"required"`
	TTL        time.Duration `validate:"gt=0"`
	CookieName string
	Secure     bool
}

type RateLimitConfig struct {
	Enabled  bool
	Capacity int           `validate:"required_if=Enabled true,gte=0"`
	Window   time.Duration `validate:"required_if=Enabled true,gte=0"`
	Prefix   string
}

type RoutingConfig struct {
	BaseURL         string
	APIKey          string
	Profile         string
	Timeout         time.Duration
	AssumedSpeedKmh float64 `validate:"gt=0"`
}

type TrackingConfig struct {
	ActiveWindow time.Duration `validate:"gt=0"`
	SendBuffer   int           `validate:"gt=0"`
	WriteWait    time.Duration
	PongWait     time.Duration
}

type StorageConfig struct {
	Enabled       bool
	Endpoint      string `validate:"required_if=Enabled true"`
	AccessKey     string
	SecretKey     string
	BucketExports string
	UseSSL        bool
	Region        string
	URLExpiry     time.Duration
}

type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

type HistoryConfig struct {
	Retention     time.Duration
	PruneSchedule string
	ClaimInterval time.Duration
}

type LoggingConfig struct {
	Level string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Database         DatabaseConfig
	Redis            RedisConfig
	Session          SessionConfig
	RateLimit        RateLimitConfig
	Routing          RoutingConfig
	Tracking         TrackingConfig
	Storage          StorageConfig
	NATS             NATSConfig
	History          HistoryConfig
	Logging          LoggingConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Routing.APIKey == "" {
		cfg.Routing.APIKey = os.Getenv("OPENROUTE_API_KEY")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *AppConfig) validate() error {
	err := validator.New().Struct(c)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, fmt.Sprintf("%s fails %q", configKey(fe.Namespace()), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
}

// configKey turns a validator namespace such as AppConfig.RateLimit.Window
// into the key used in config.yaml and BUSTRACK_* variables.
func configKey(namespace string) string {
	_, key, _ := strings.Cut(namespace, ".")
	return strings.ToLower(key)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.maxopen", 20)
	v.SetDefault("database.maxidle", 5)
	v.SetDefault("database.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "bus:locations")
	v.SetDefault("redis.group", "location-history")
	v.SetDefault("redis.consumer", "worker-1")

	v.SetDefault("session.secret", "")
	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.cookiename", "bus_session")
	v.SetDefault("session.secure", false)

	// 1000 submissions per 15 minutes per network origin.
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.capacity", 1000)
	v.SetDefault("ratelimit.window", "15m")
	v.SetDefault("ratelimit.prefix", "rl:location")

	v.SetDefault("routing.baseurl", "https://api.openrouteservice.org/v2")
	v.SetDefault("routing.apikey", "")
	v.SetDefault("routing.profile", "driving-car")
	v.SetDefault("routing.timeout", "5s")
	v.SetDefault("routing.assumedspeedkmh", 30.0)

	v.SetDefault("tracking.activewindow", "10m")
	v.SetDefault("tracking.sendbuffer", 64)
	v.SetDefault("tracking.writewait", "10s")
	v.SetDefault("tracking.pongwait", "60s")

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.accesskey", "")
	v.SetDefault("storage.secretkey", "")
	v.SetDefault("storage.bucketexports", "bustrack-exports")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.urlexpiry", "15m")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subjectprefix", "bus")

	v.SetDefault("history.retention", "720h") // 30 days
	v.SetDefault("history.pruneschedule", "0 30 3 * * *")
	v.SetDefault("history.claiminterval", "30s")

	v.SetDefault("logging.level", "")
	v.SetDefault("allowcorsorigins", []string{})
}
