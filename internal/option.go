package internal

import "github.com/aldwick/wardview/internal/gateway"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	gateway gateway.Client
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithGateway injects a gateway client, replacing the HTTP one built from
// config. Used by tests to run the full app against a fake upstream.
func WithGateway(gw gateway.Client) Option {
	return func(a *application) {
		a.gateway = gw
	}
}
