package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Supported live WhatsApp providers
const (
	ProviderGraph          = "graph"
	ProviderTwilio         = "twilio"
	ProviderSendchamp      = "sendchamp"
	ProviderAfricasTalking = "africastalking"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	RabbitMQ  RabbitMQConfig
	Redis     RedisConfig
	WhatsApp  WhatsAppConfig
	Flow      FlowConfig
	Simulator SimulatorConfig
	Env       string `env:"ENV" envDefault:"development"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     string `env:"POSTGRES_PORT" envDefault:"5432"`
	User     string `env:"POSTGRES_USER" envDefault:"wachannel"`
	Password string `env:"POSTGRES_PASSWORD"`
	DBName   string `env:"POSTGRES_DB" envDefault:"wachannel_db"`
	SSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`
}

// RabbitMQConfig holds RabbitMQ configuration
type RabbitMQConfig struct {
	Host              string `env:"RABBITMQ_HOST" envDefault:"localhost"`
	Port              string `env:"RABBITMQ_PORT" envDefault:"5672"`
	User              string `env:"RABBITMQ_DEFAULT_USER" envDefault:"guest"`
	Password          string `env:"RABBITMQ_DEFAULT_PASS" envDefault:"guest"`
	SendQueue         string `env:"RABBITMQ_SEND_QUEUE" envDefault:"whatsapp_sends"`
	BroadcastExchange string `env:"RABBITMQ_SIMULATOR_EXCHANGE" envDefault:"simulator"`
}

// RedisConfig is optional; an empty address disables Redis.
type RedisConfig struct {
	Addr        string `env:"REDIS_ADDR"`
	Password    string `env:"REDIS_PASSWORD"`
	DB          int    `env:"REDIS_DB" envDefault:"0"`
	IdentityKey string `env:"REDIS_IDENTITY_KEY" envDefault:"simulator:identities"`
}

// WhatsAppConfig selects and configures the outbound transport
type WhatsAppConfig struct {
	Simulate        bool          `env:"WHATSAPP_SIMULATE" envDefault:"false"`
	Provider        string        `env:"WHATSAPP_PROVIDER" envDefault:"graph"`
	DispatchTimeout time.Duration `env:"WHATSAPP_DISPATCH_TIMEOUT" envDefault:"15s"`
	AppSecret       string        `env:"WHATSAPP_APP_SECRET"`
	VerifyToken     string        `env:"WHATSAPP_VERIFY_TOKEN"`

	Graph          GraphConfig
	Twilio         TwilioConfig
	Sendchamp      SendchampConfig
	AfricasTalking AfricasTalkingConfig
}

// GraphConfig configures the direct Cloud API transport
type GraphConfig struct {
	BaseURL       string `env:"WHATSAPP_GRAPH_URL" envDefault:"https://graph.facebook.com"`
	APIVersion    string `env:"WHATSAPP_API_VERSION" envDefault:"v21.0"`
	PhoneNumberID string `env:"WHATSAPP_PHONE_NUMBER_ID"`
	AccessToken   string `env:"WHATSAPP_ACCESS_TOKEN"`
}

type TwilioConfig struct {
	AccountSID string `env:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	From       string `env:"TWILIO_WHATSAPP_FROM"`
}

type SendchampConfig struct {
	BaseURL   string `env:"SENDCHAMP_BASE_URL" envDefault:"https://api.sendchamp.com"`
	SecretKey string `env:"SENDCHAMP_SECRET_KEY"`
	Sender    string `env:"SENDCHAMP_SENDER"`
}

type AfricasTalkingConfig struct {
	BaseURL  string `env:"AFRICASTALKING_BASE_URL" envDefault:"https://chat.africastalking.com"`
	APIKey   string `env:"AFRICASTALKING_API_KEY"`
	Username string `env:"AFRICASTALKING_USERNAME"`
	WANumber string `env:"AFRICASTALKING_WHATSAPP_NUMBER"`
}

// FlowConfig holds the key material used to open Flow requests.
// PrivateKey wins over PrivateKeyPath when both are set.
type FlowConfig struct {
	PrivateKey     string `env:"FLOW_PRIVATE_KEY"`
	PrivateKeyPath string `env:"FLOW_PRIVATE_KEY_PATH"`
	Passphrase     string `env:"FLOW_PASSPHRASE"`
}

// SimulatorConfig maps phone numbers to display identities, e.g.
// SIMULATOR_IDENTITIES="+2348000000001=tenant-demo,+2348000000002=landlord-demo"
type SimulatorConfig struct {
	Identities map[string]string `env:"SIMULATOR_IDENTITIES" envKeyValSeparator:"="`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	config.WhatsApp.Provider = strings.ToLower(strings.TrimSpace(config.WhatsApp.Provider))

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadDatabase reads only what the migration runner needs; provider
// credentials are not checked.
func LoadDatabase() (*DatabaseConfig, error) {
	db := &DatabaseConfig{}
	if err := env.Parse(db); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if db.Password == "" {
		return nil, fmt.Errorf("POSTGRES_PASSWORD is required")
	}
	return db, nil
}

// DSN returns the PostgreSQL connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.DBName,
		d.SSLMode,
	)
}

// Validate checks required fields and the credentials of the selected provider
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("POSTGRES_PASSWORD is required")
	}
	if c.WhatsApp.DispatchTimeout <= 0 {
		return fmt.Errorf("WHATSAPP_DISPATCH_TIMEOUT must be > 0")
	}

	// Simulation never reaches a provider, so credentials are not needed
	if c.WhatsApp.Simulate {
		return nil
	}

	var missing []string
	require := func(key, value string) {
		if value == "" {
			missing = append(missing, key)
		}
	}

	switch c.WhatsApp.Provider {
	case ProviderGraph:
		require("WHATSAPP_PHONE_NUMBER_ID", c.WhatsApp.Graph.PhoneNumberID)
		require("WHATSAPP_ACCESS_TOKEN", c.WhatsApp.Graph.AccessToken)
	case ProviderTwilio:
		require("TWILIO_ACCOUNT_SID", c.WhatsApp.Twilio.AccountSID)
		require("TWILIO_AUTH_TOKEN", c.WhatsApp.Twilio.AuthToken)
		require("TWILIO_WHATSAPP_FROM", c.WhatsApp.Twilio.From)
	case ProviderSendchamp:
		require("SENDCHAMP_SECRET_KEY", c.WhatsApp.Sendchamp.SecretKey)
		require("SENDCHAMP_SENDER", c.WhatsApp.Sendchamp.Sender)
	case ProviderAfricasTalking:
		require("AFRICASTALKING_API_KEY", c.WhatsApp.AfricasTalking.APIKey)
		require("AFRICASTALKING_USERNAME", c.WhatsApp.AfricasTalking.Username)
		require("AFRICASTALKING_WHATSAPP_NUMBER", c.WhatsApp.AfricasTalking.WANumber)
	default:
		return fmt.Errorf("invalid WHATSAPP_PROVIDER %q: must be one of graph, twilio, sendchamp, africastalking", c.WhatsApp.Provider)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables for provider %s: %v", c.WhatsApp.Provider, missing)
	}

	return nil
}

// FlowPrivateKey returns the PEM-encoded Flow private key
func (c *Config) FlowPrivateKey() ([]byte, error) {
	if c.Flow.PrivateKey != "" {
		return []byte(c.Flow.PrivateKey), nil
	}
	if c.Flow.PrivateKeyPath == "" {
		return nil, fmt.Errorf("FLOW_PRIVATE_KEY or FLOW_PRIVATE_KEY_PATH is required")
	}

	pem, err := os.ReadFile(c.Flow.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow private key: %w", err)
	}
	return pem, nil
}

// GetDatabaseDSN returns PostgreSQL connection string
func (c *Config) GetDatabaseDSN() string {
	return c.Database.DSN()
}

// GetRabbitMQURL returns RabbitMQ connection URL
func (c *Config) GetRabbitMQURL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		c.RabbitMQ.User,
		c.RabbitMQ.Password,
		c.RabbitMQ.Host,
		c.RabbitMQ.Port,
	)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
