package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures the service configuration assembled from the environment.
type Server struct {
	Addr          string
	PolicyVersion string

	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	TokenTTL      time.Duration

	ConsentTTLMonths     int
	RenewalLookaheadDays int
	RenewalCheckInterval time.Duration

	AuditQueueSize    int
	AuditPollInterval time.Duration
	AuditSinkURL      string

	KafkaBrokers    []string
	KafkaAuditTopic string

	RedisURL string
}

const (
	defaultAddr           = ":8080"
	defaultPolicyVersion  = "1.0"
	defaultTokenTTL       = 15 * time.Minute
	defaultTTLMonths      = 12
	defaultLookaheadDays  = 30
	defaultCheckInterval  = time.Hour
	defaultAuditQueueSize = 1000
	defaultAuditPoll      = 250 * time.Millisecond
	defaultAuditTopic     = "assent.audit.entries"
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:                 envOr("ASSENT_ADDR", defaultAddr),
		PolicyVersion:        envOr("ASSENT_POLICY_VERSION", defaultPolicyVersion),
		JWTSigningKey:        envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:            envOr("JWT_ISSUER", "https://assent.local"),
		JWTAudience:          envOr("JWT_AUDIENCE", "booking-frontend"),
		TokenTTL:             envDuration("TOKEN_TTL", defaultTokenTTL),
		ConsentTTLMonths:     envInt("CONSENT_TTL_MONTHS", defaultTTLMonths),
		RenewalLookaheadDays: envInt("RENEWAL_LOOKAHEAD_DAYS", defaultLookaheadDays),
		RenewalCheckInterval: envDuration("RENEWAL_CHECK_INTERVAL", defaultCheckInterval),
		AuditQueueSize:       envInt("AUDIT_QUEUE_SIZE", defaultAuditQueueSize),
		AuditPollInterval:    envDuration("AUDIT_POLL_INTERVAL", defaultAuditPoll),
		AuditSinkURL:         os.Getenv("AUDIT_SINK_URL"),
		KafkaAuditTopic:      envOr("KAFKA_AUDIT_TOPIC", defaultAuditTopic),
		RedisURL:             os.Getenv("REDIS_URL"),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
