package chainrpc

import (
	"time"

	"github.com/vitwit/chainrpc/logger"
	"github.com/vitwit/chainrpc/metrics"
)

type Option func(*Client)

func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.metrics = r
		}
	}
}

// WithTimeout sets the request timeout used by networks that do not set
// their own.
func WithTimeout(t time.Duration) Option {
	return func(c *Client) {
		c.timeout = t
	}
}

func WithRetryCount(n int) Option {
	return func(c *Client) {
		c.retryCount = n
	}
}
