package db

import "time"

type options struct {
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
	pingTimeout     time.Duration
}

// Option configures how a database connection is opened.
type Option func(*options)

// WithMaxOpenConns limits the number of open connections to the database.
func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOpenConns = n
			o.maxIdleConns = min(o.maxIdleConns, n)
		}
	}
}

// WithPingTimeout sets how long Open waits for the database to respond.
func WithPingTimeout(dur time.Duration) Option {
	return func(o *options) {
		if dur > 0 {
			o.pingTimeout = dur
		}
	}
}

func defaultOptions() *options {
	return &options{
		maxOpenConns:    5,
		maxIdleConns:    2,
		connMaxLifetime: 5 * time.Minute,
		pingTimeout:     10 * time.Second,
	}
}
