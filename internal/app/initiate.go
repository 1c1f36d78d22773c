package app

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/nsqio/go-nsq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/segmentio/kafka-go"
	"github.com/sethvargo/go-retry"
	"github.com/shandysiswandi/otpgate/internal/otp/outbound/store"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpgate/internal/pkg/hash"
	"github.com/shandysiswandi/otpgate/internal/pkg/idempotency"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/jwt"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
	"github.com/shandysiswandi/otpgate/internal/pkg/storage"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
	"google.golang.org/api/option"
)

const driverNone = "none"

// errVolatileStore rejects the in-process OTP store outside local runs.
var errVolatileStore = errors.New("app: memory:// otp store does not survive a restart; set LOCAL=true to allow it")

//nolint:gochecknoglobals // read once at startup
var defaults = map[string]any{
	"app.tz":      "UTC",
	"app.node_id": 1,

	"app.server.http.address":                     ":8080",
	"app.server.http.read_timeout_seconds":        15,
	"app.server.http.read_header_timeout_seconds": 5,
	"app.server.http.write_timeout_seconds":       30,
	"app.server.http.idle_timeout_seconds":        60,

	"instrument.enabled":         false,
	"instrument.service_name":    "otpgate",
	"instrument.log_mask_fields": "authorization,code,grant_token,secret,password",

	"otp.code_length":                 6,
	"otp.ttl_minutes":                 10,
	"otp.store.endpoint":              "redis://localhost:6379/0",
	"otp.store.timeout_seconds":       3,
	"otp.store.retention_minutes":     1440,
	"otp.store.reap_interval_seconds": 300,
	"otp.store.auto_migrate":          true,
	"otp.delivery.mode":               "direct",
	"otp.delivery.timeout_seconds":    10,

	"mail.driver":      "smtp",
	"messaging.driver": driverNone,

	"modules.notification.enabled":     false,
	"modules.file.enabled":             false,
	"modules.file.max_size_bytes":      10 << 20,
	"modules.file.presign_ttl_minutes": 15,
	"modules.file.grant.ttl_minutes":   15,
}

func (a *App) initConfig() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "/config/config.yaml"
		if os.Getenv("LOCAL") == "true" {
			path = "./config/config.yaml"
		}
	}

	cfg, err := config.NewViper(path, config.WithDefaults(defaults), config.WithEnv())
	if err != nil {
		slog.Error("failed to init config", "error", err)
		os.Exit(1)
	}

	//nolint:errcheck,gosec // ignore error
	os.Setenv("TZ", cfg.GetString("app.tz"))

	a.config = cfg
}

func (a *App) initInstrument() {
	ins, err := instrument.New(a.ctx, &instrument.Config{
		Enabled:          a.config.GetBool("instrument.enabled"),
		ServiceName:      a.config.GetString("instrument.service_name"),
		ServiceVersion:   a.config.GetString("instrument.service_version"),
		Environment:      a.config.GetString("instrument.env"),
		OTLPEndpoint:     a.config.GetString("instrument.otlp_endpoint"),
		OTLPSecure:       a.config.GetBool("instrument.otlp_secure"),
		TraceSampleRatio: a.config.GetFloat64("instrument.trace_sample_ratio"),
		MetricsInterval:  a.config.GetSecond("instrument.metric_interval_seconds"),
		MaskFields:       a.config.GetArray("instrument.log_mask_fields"),
		LogLevel:         a.config.GetString("instrument.log_level"),
	})
	if err != nil {
		slog.Error("failed to init instrumentation", "error", err)
		os.Exit(1)
	}
	a.ins = ins
}

func (a *App) initLibraries() {
	a.clock = clock.New()
	a.uuid = uid.NewUUID()
	a.generator = otp.NewCrypto()
	a.goroutine = goroutine.NewManager(a.config.GetInt("app.server.max_goroutine"))

	hmac, err := hash.NewHMACSHA256(a.config.GetString("otp.hmac_secret"))
	if err != nil {
		slog.Error("failed to init otp hmac, set otp.hmac_secret", "error", err)
		os.Exit(1)
	}
	a.hmac = hmac

	validator, err := validator.NewV10Validator()
	if err != nil {
		slog.Error("failed to init validation v10 validator", "error", err)
		os.Exit(1)
	}
	a.validator = validator

	snow, err := uid.NewSnowflake(a.config.GetInt64("app.node_id"))
	if err != nil {
		slog.Error("failed to init uid number snowflake", "error", err)
		os.Exit(1)
	}
	a.uid = snow

	if !a.config.GetBool("modules.file.enabled") {
		return
	}

	grant, err := jwt.NewHS512(jwt.Config{
		Secret:    []byte(a.config.GetString("modules.file.grant.secret")),
		Issuer:    a.config.GetString("instrument.service_name"),
		Audiences: a.config.GetArray("modules.file.grant.audiences"),
		TTL:       a.config.GetMinute("modules.file.grant.ttl_minutes"),
		Clock:     a.clock,
		UUID:      a.uuid,
	})
	if err != nil {
		slog.Error("failed to init file grant token", "error", err)
		os.Exit(1)
	}
	a.grant = grant
}

// initCache connects Redis when redis.url is set. Idempotency, and so the
// notification and file modules, need it.
func (a *App) initCache() {
	raw := strings.TrimSpace(a.config.GetString("redis.url"))
	if raw == "" {
		if a.config.GetBool("modules.notification.enabled") || a.config.GetBool("modules.file.enabled") {
			slog.Error("failed to init redis, redis.url is required by the notification and file modules")
			os.Exit(1)
		}
		return
	}

	opt, err := redis.ParseURL(raw)
	if err != nil {
		slog.Error("failed to parse redis url", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(opt)
	if err := connectWithRetry(a.ctx, "redis", func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return retry.RetryableError(rdb.Ping(pingCtx).Err())
	}); err != nil {
		slog.Error("failed to init redis", "error", err)
		os.Exit(1)
	}

	a.cacheConn = rdb
	a.idemp = idempotency.New(a.cacheConn)
}

func (a *App) initOTPStore() {
	opts := store.Options{
		Timeout:     a.config.GetSecond("otp.store.timeout_seconds"),
		Retention:   a.config.GetMinute("otp.store.retention_minutes"),
		AutoMigrate: a.config.GetBool("otp.store.auto_migrate"),
		Clock:       a.clock,
		Instrument:  a.ins,
	}

	endpoint := a.config.GetString("otp.store.endpoint")
	if err := checkStoreEndpoint(endpoint, os.Getenv("LOCAL") == "true"); err != nil {
		slog.Error("failed to init otp store", "error", err)
		os.Exit(1)
	}
	if err := connectWithRetry(a.ctx, "otp_store", func(ctx context.Context) error {
		s, err := store.NewFromEndpoint(ctx, endpoint, opts)
		if errors.Is(err, store.ErrUnsupportedScheme) {
			return err
		}
		if err != nil {
			return retry.RetryableError(err)
		}
		a.otpStore = s
		return nil
	}); err != nil {
		slog.Error("failed to init otp store", "error", err)
		os.Exit(1)
	}

	if r, ok := a.otpStore.(interface{ Reap(ctx context.Context) error }); ok {
		a.goroutine.Every(a.ctx, "otp_store_reaper", a.config.GetSecond("otp.store.reap_interval_seconds"), r.Reap)
	}
}

// checkStoreEndpoint allows the memory backend only for local runs, and warns
// even then.
func checkStoreEndpoint(endpoint string, local bool) error {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(endpoint)), "memory:") {
		return nil
	}
	if !local {
		return errVolatileStore
	}
	slog.Warn("otp store is in-process memory; pending codes are lost on restart and not shared across instances")
	return nil
}

func (a *App) initMail() {
	driver := strings.TrimSpace(a.config.GetString("mail.driver"))
	if driver == driverNone {
		return
	}

	client, err := mail.New(driver, mail.Config{
		Host:     a.config.GetString("mail.host"),
		Port:     a.config.GetInt("mail.port"),
		Username: a.config.GetString("mail.username"),
		Password: a.config.GetString("mail.password"),
		From:     a.config.GetString("otp.sender_identity"),
		SSL:      a.config.GetBool("mail.ssl"),
	})
	if err != nil {
		slog.Error("failed to init mail", "error", err, "driver", driver)
		os.Exit(1)
	}

	a.mail = client
}

func (a *App) initStorage() {
	if !a.config.GetBool("modules.file.enabled") {
		return
	}

	driver := strings.TrimSpace(a.config.GetString("storage.driver"))
	stg, err := storage.NewFromDriver(a.ctx, driver, storage.FactoryOptions{
		S3: storage.S3Options{
			Region:       strings.TrimSpace(a.config.GetString("storage.s3.region")),
			Endpoint:     strings.TrimSpace(a.config.GetString("storage.s3.endpoint")),
			AccessKey:    strings.TrimSpace(a.config.GetString("storage.s3.access_key")),
			SecretKey:    strings.TrimSpace(a.config.GetString("storage.s3.secret_key")),
			SessionToken: strings.TrimSpace(a.config.GetString("storage.s3.session_token")),
			UsePathStyle: a.config.GetBool("storage.s3.use_path_style"),
		},
		GCS: storage.GCSOptions{
			CredentialsJSON: a.config.GetBinary("storage.gcs.credentials_json"),
			Endpoint:        strings.TrimSpace(a.config.GetString("storage.gcs.endpoint")),
			UserAgent:       strings.TrimSpace(a.config.GetString("storage.gcs.user_agent")),
			WithoutAuth:     a.config.GetBool("storage.gcs.without_auth"),
			GoogleAccessID:  strings.TrimSpace(a.config.GetString("storage.gcs.signer_access_id")),
			PrivateKey:      a.config.GetBinary("storage.gcs.signer_private_key"),
		},
		MinIO: storage.MinIOOptions{
			Region:       strings.TrimSpace(a.config.GetString("storage.minio.region")),
			Endpoint:     strings.TrimSpace(a.config.GetString("storage.minio.endpoint")),
			AccessKey:    strings.TrimSpace(a.config.GetString("storage.minio.access_key")),
			SecretKey:    strings.TrimSpace(a.config.GetString("storage.minio.secret_key")),
			SessionToken: strings.TrimSpace(a.config.GetString("storage.minio.session_token")),
			UseSSL:       a.config.GetBool("storage.minio.use_ssl"),
		},
	})
	if err != nil {
		slog.Error("failed to init storage", "error", err, "driver", driver)
		os.Exit(1)
	}

	a.storage = stg
}

func (a *App) initMessaging() {
	driver := strings.TrimSpace(a.config.GetString("messaging.driver"))
	if driver == "" || driver == driverNone {
		return
	}

	client, err := messaging.NewFromDriver(a.ctx, driver, messaging.FactoryOptions{
		NSQ: messaging.NSQConfig{
			ProducerAddr:         a.config.GetString("messaging.nsq.producer_addr"),
			ConsumerNSQDAddrs:    a.config.GetArray("messaging.nsq.consumer_nsqd_addrs"),
			ConsumerLookupdAddrs: a.config.GetArray("messaging.nsq.consumer_lookupd_addrs"),
			Config: func() *nsq.Config {
				cfg := nsq.NewConfig()
				cfg.MaxInFlight = max(1, a.config.GetInt("messaging.nsq.max_in_flight"))
				if v := a.config.GetInt("messaging.nsq.max_attempts"); v > 0 {
					cfg.MaxAttempts = uint16(v) //nolint:gosec // bounded by config
				}
				if v := a.config.GetSecond("messaging.nsq.dial_timeout_seconds"); v > 0 {
					cfg.DialTimeout = v
				}
				if v := a.config.GetSecond("messaging.nsq.default_requeue_delay_seconds"); v > 0 {
					cfg.DefaultRequeueDelay = v
				}
				return cfg
			}(),
		},
		Kafka: messaging.KafkaConfig{
			Brokers: a.config.GetArray("messaging.kafka.brokers"),
			Dialer: func() *kafka.Dialer {
				d := &kafka.Dialer{
					ClientID:  a.config.GetString("instrument.service_name"),
					Timeout:   10 * time.Second,
					DualStack: true,
				}
				if v := a.config.GetSecond("messaging.kafka.dial_timeout_seconds"); v > 0 {
					d.Timeout = v
				}
				return d
			}(),
		},
		NATS: messaging.NATSConfig{
			URL: a.config.GetString("messaging.nats.url"),
			Options: []nats.Option{
				nats.Name(a.config.GetString("instrument.service_name")),
				nats.MaxReconnects(a.config.GetInt("messaging.nats.max_reconnects")),
				nats.ReconnectWait(a.config.GetSecond("messaging.nats.reconnect_wait_seconds")),
				nats.RetryOnFailedConnect(a.config.GetBool("messaging.nats.retry_on_failed_connect")),
			},
		},
		PubSub: messaging.PubSubConfig{
			ProjectID:     a.config.GetString("messaging.pubsub.project_id"),
			ClientOptions: a.pubsubOptions(),
		},
	})
	if err != nil {
		slog.Error("failed to init messaging", "error", err, "driver", driver)
		os.Exit(1)
	}

	a.messaging = client
}

func (a *App) pubsubOptions() []option.ClientOption {
	var opts []option.ClientOption
	if v := a.config.GetBinary("messaging.pubsub.credentials_json"); len(v) > 0 {
		opts = append(opts, option.WithCredentialsJSON(v))
	}
	if v := strings.TrimSpace(a.config.GetString("messaging.pubsub.endpoint")); v != "" {
		opts = append(opts, option.WithEndpoint(v), option.WithoutAuthentication())
	}
	return opts
}

func (a *App) initHTTPServer() {
	a.router = router.NewRouter(router.Config{
		Config:     a.config,
		UUID:       a.uuid,
		Instrument: a.ins,
	})
	a.router.GETRaw("/swagger/doc.json", http.HandlerFunc(serveAPIDoc))

	routerWithCORS := cors.New(cors.Options{
		AllowedOrigins: a.config.GetArray("app.server.cors"),
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(a.router)

	a.httpServer = &http.Server{
		Addr:              a.config.GetString("app.server.http.address"),
		Handler:           routerWithCORS,
		ReadTimeout:       a.config.GetSecond("app.server.http.read_timeout_seconds"),
		ReadHeaderTimeout: a.config.GetSecond("app.server.http.read_header_timeout_seconds"),
		WriteTimeout:      a.config.GetSecond("app.server.http.write_timeout_seconds"),
		IdleTimeout:       a.config.GetSecond("app.server.http.idle_timeout_seconds"),
	}
}

func (a *App) initClosers() {
	a.closers = []struct {
		name string
		fn   func(context.Context) error
	}{
		{
			name: "Instrument",
			fn: func(ctx context.Context) error {
				return a.ins.Shutdown(ctx)
			},
		},
		{
			name: "Messaging",
			fn: func(context.Context) error {
				if a.messaging == nil {
					return nil
				}
				return a.messaging.Close()
			},
		},
		{
			name: "OTPStore",
			fn: func(context.Context) error {
				return a.otpStore.Close()
			},
		},
		{
			name: "Redis",
			fn: func(context.Context) error {
				if a.cacheConn == nil {
					return nil
				}
				return a.cacheConn.Close()
			},
		},
		{
			name: "Storage",
			fn: func(context.Context) error {
				if a.storage == nil {
					return nil
				}
				return a.storage.Close()
			},
		},
		{
			name: "Mail",
			fn: func(context.Context) error {
				if a.mail == nil {
					return nil
				}
				return a.mail.Close()
			},
		},
		{
			name: "Config",
			fn: func(context.Context) error {
				return a.config.Close()
			},
		},
	}
}

// connectWithRetry retries fn with exponential backoff. fn marks the errors
// worth retrying with retry.RetryableError.
func connectWithRetry(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(4, retry.NewExponential(500*time.Millisecond))
	b = retry.WithCappedDuration(5*time.Second, b)

	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err != nil {
			slog.WarnContext(ctx, "connection attempt failed", "name", name, "attempt", attempt, "error", err)
		}
		return err
	})
}
