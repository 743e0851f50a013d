package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// App mode & server
	Mode        string
	ServerAddr  string
	TLSCertFile string
	TLSKeyFile  string

	// Auth
	JWTSecret string
	TokenTTL  time.Duration

	// Logging & messages
	LogLevel  string
	LogPretty bool
	Locale    string

	// Store selection: memory, sql, cassandra
	StoreDriver string

	// Relational store (gorm)
	SQLDriver          string
	SQLHost            string
	SQLPort            int
	SQLUser            string
	SQLPassword        string
	SQLDBName          string
	SQLSSLMode         string
	SQLFilePath        string
	SQLMaxIdleConns    int
	SQLMaxOpenConns    int
	SQLConnMaxLifetime time.Duration

	// Kafka
	KafkaBroker  string
	KafkaTopic   string
	KafkaWriteTO time.Duration

	// Cassandra
	CassandraHost     string
	CassandraKeyspace string
	CassandraUsername string
	CassandraPassword string
	CassandraTimeout  time.Duration
	CassandraDC       string
}

var cfg *Config

// Init loads the config using Viper and returns it
func Init() *Config {
	viper.SetDefault("MODE", "server")
	viper.SetDefault("SERVER_ADDR", ":8080")

	viper.SetDefault("JWT_SECRET", "dev-secret")
	viper.SetDefault("TOKEN_TTL", "24h")

	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_PRETTY", false)
	viper.SetDefault("LOCALE", "ja")

	viper.SetDefault("STORE_DRIVER", "memory")

	viper.SetDefault("SQL_DRIVER", "sqlite")
	viper.SetDefault("SQL_HOST", "localhost")
	viper.SetDefault("SQL_PORT", 5432)
	viper.SetDefault("SQL_USER", "postgres")
	viper.SetDefault("SQL_PASSWORD", "postgres")
	viper.SetDefault("SQL_DBNAME", "tweetgraph")
	viper.SetDefault("SQL_SSLMODE", "disable")
	viper.SetDefault("SQL_FILE_PATH", "tweetgraph.db")
	viper.SetDefault("SQL_MAX_IDLE_CONNS", 10)
	viper.SetDefault("SQL_MAX_OPEN_CONNS", 100)
	viper.SetDefault("SQL_CONN_MAX_LIFETIME", "60m")

	// Empty broker disables event publishing; several brokers are comma separated
	viper.SetDefault("KAFKA_BROKER", "")
	viper.SetDefault("KAFKA_TOPIC", "tweetgraph-events")
	viper.SetDefault("KAFKA_WRITE_TIMEOUT", "10s")

	viper.SetDefault("CASSANDRA_HOST", "localhost")
	viper.SetDefault("CASSANDRA_KEYSPACE", "tweetgraph")
	viper.SetDefault("CASSANDRA_TIMEOUT", "10s")
	// Optional: Cassandra username/password/DC can be empty

	// Load env variables
	viper.AutomaticEnv()

	// Optional config file support
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	_ = viper.ReadInConfig() // ignore error if no file

	cfg = &Config{
		Mode:               viper.GetString("MODE"),
		ServerAddr:         viper.GetString("SERVER_ADDR"),
		TLSCertFile:        viper.GetString("TLS_CERT_FILE"),
		TLSKeyFile:         viper.GetString("TLS_KEY_FILE"),
		JWTSecret:          viper.GetString("JWT_SECRET"),
		TokenTTL:           parseDuration(viper.GetString("TOKEN_TTL"), 24*time.Hour),
		LogLevel:           viper.GetString("LOG_LEVEL"),
		LogPretty:          viper.GetBool("LOG_PRETTY"),
		Locale:             viper.GetString("LOCALE"),
		StoreDriver:        viper.GetString("STORE_DRIVER"),
		SQLDriver:          viper.GetString("SQL_DRIVER"),
		SQLHost:            viper.GetString("SQL_HOST"),
		SQLPort:            viper.GetInt("SQL_PORT"),
		SQLUser:            viper.GetString("SQL_USER"),
		SQLPassword:        viper.GetString("SQL_PASSWORD"),
		SQLDBName:          viper.GetString("SQL_DBNAME"),
		SQLSSLMode:         viper.GetString("SQL_SSLMODE"),
		SQLFilePath:        viper.GetString("SQL_FILE_PATH"),
		SQLMaxIdleConns:    viper.GetInt("SQL_MAX_IDLE_CONNS"),
		SQLMaxOpenConns:    viper.GetInt("SQL_MAX_OPEN_CONNS"),
		SQLConnMaxLifetime: parseDuration(viper.GetString("SQL_CONN_MAX_LIFETIME"), time.Hour),
		KafkaBroker:        viper.GetString("KAFKA_BROKER"),
		KafkaTopic:         viper.GetString("KAFKA_TOPIC"),
		KafkaWriteTO:       parseDuration(viper.GetString("KAFKA_WRITE_TIMEOUT"), 10*time.Second),
		CassandraHost:      viper.GetString("CASSANDRA_HOST"),
		CassandraKeyspace:  viper.GetString("CASSANDRA_KEYSPACE"),
		CassandraUsername:  viper.GetString("CASSANDRA_USERNAME"),
		CassandraPassword:  viper.GetString("CASSANDRA_PASSWORD"),
		CassandraTimeout:   parseDuration(viper.GetString("CASSANDRA_TIMEOUT"), 10*time.Second),
		CassandraDC:        viper.GetString("CASSANDRA_DC"),
	}

	return cfg
}

func parseDuration(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

// Get returns the loaded config instance
func Get() *Config {
	return cfg
}
