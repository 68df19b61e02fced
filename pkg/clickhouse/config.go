package clickhouse

import (
	"net"
	"net/url"
	"strconv"
	"time"
)

// Config describes one ClickHouse target. The statistics mirror only
// appends, so the pool stays small and every query shares one deadline.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	HTTP     bool // http://host:8123 instead of the native protocol

	DialTimeout time.Duration
	// QueryTimeout bounds reads on the connection and is sent as
	// max_execution_time.
	QueryTimeout time.Duration

	// AsyncInsert lets the server buffer inserts. The client still waits
	// for the flush so a returned insert is durable.
	AsyncInsert bool
	MaxConns    int
}

// Option configures Config.
type Option func(*Config)

func defaultConfig() Config {
	return Config{
		Port:         9000,
		Database:     "default",
		User:         "default",
		DialTimeout:  5 * time.Second,
		QueryTimeout: 30 * time.Second,
		MaxConns:     4,
	}
}

func WithHost(host string) Option { return func(c *Config) { c.Host = host } }

func WithPort(port int) Option {
	return func(c *Config) {
		if port > 0 {
			c.Port = port
		}
	}
}

func WithDatabase(name string) Option {
	return func(c *Config) {
		if name != "" {
			c.Database = name
		}
	}
}

func WithCredentials(user, password string) Option {
	return func(c *Config) {
		if user != "" {
			c.User = user
		}
		c.Password = password
	}
}

func WithHTTP(enabled bool) Option { return func(c *Config) { c.HTTP = enabled } }

// WithTimeouts sets the dial and per-query deadlines. Zero keeps the default.
func WithTimeouts(dial, query time.Duration) Option {
	return func(c *Config) {
		if dial > 0 {
			c.DialTimeout = dial
		}
		if query > 0 {
			c.QueryTimeout = query
		}
	}
}

func WithAsyncInsert(enabled bool) Option { return func(c *Config) { c.AsyncInsert = enabled } }

func WithMaxConns(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxConns = n
		}
	}
}

func (c Config) dsn() string {
	scheme := "clickhouse"
	if c.HTTP {
		scheme = "http"
	}
	q := url.Values{}
	q.Set("dial_timeout", c.DialTimeout.String())
	q.Set("read_timeout", c.QueryTimeout.String())
	if secs := int(c.QueryTimeout.Seconds()); secs > 0 {
		q.Set("max_execution_time", strconv.Itoa(secs))
	}
	if c.AsyncInsert {
		q.Set("async_insert", "1")
		q.Set("wait_for_async_insert", "1")
	}
	u := url.URL{
		Scheme:   scheme,
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}
