package imgdex

import (
	"go.uber.org/zap"

	"github.com/imgdex/imgdex/internal/registry"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

// resolvedFeatureCodes returns the configured extraction set, falling back
// to the default five classical features when none was selected.
func (c *clientConfig) resolvedFeatureCodes() []string {
	if len(c.featureCodes) > 0 {
		return c.featureCodes
	}
	return registry.DefaultFeatureCodes()
}

type clientConfig struct {
	addrs    []string
	password string

	resourceDir string
	pivotCodes  []string

	segmentSize  int
	featureCodes []string
	multiValued  []string

	logger *zap.Logger
}

// WithRedis configures the client to connect to a Redis instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithRedisCluster configures the client with multiple seed addresses.
func WithRedisCluster(addrs []string, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.addrs = addrs
		c.password = password
	})
}

// WithResourceDir points the client at the hash reference data directory.
// Required for image ingestion; scoring and precomputed-row import work
// without it.
func WithResourceDir(dir string) Option {
	return optionFunc(func(c *clientConfig) {
		c.resourceDir = dir
	})
}

// WithPivotCodes lists the feature codes with a metric-space pivot file in
// the resource directory.
func WithPivotCodes(codes ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.pivotCodes = codes
	})
}

// WithSegmentSize bounds how many documents accumulate in the open segment
// before it seals automatically. Default: 4096.
func WithSegmentSize(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.segmentSize = n
	})
}

// WithFeatureCodes selects the features extracted from ingested images.
// Default: cl, eh, jc, oh, ph.
func WithFeatureCodes(codes ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.featureCodes = codes
	})
}

// WithMultiValuedFields marks histogram fields that hold one vector per
// sub-image instead of a single whole-image vector.
func WithMultiValuedFields(fields ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.multiValued = fields
	})
}

// WithLogger enables structured logging for client operations.
// Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}
