package cache

import (
	"github.com/caarlos0/env/v11"
	"github.com/jmgilman/go/errors"
)

// Limits is the byte budget of a Pool.
type Limits struct {
	// TotalBytesLimit caps the sum of entry sizes tracked by the pool.
	// 0 disables both size tracking and the eviction queue: entries are
	// destroyed as soon as their last pin is released.
	TotalBytesLimit int64 `env:"CACHE_POOL_TOTAL_BYTES_LIMIT" envDefault:"0"`
}

// Validate reports a negative limit.
func (l Limits) Validate() error {
	if l.TotalBytesLimit < 0 {
		err := errors.Newf(errors.CodeInvalidConfig, "cache: negative total bytes limit %d", l.TotalBytesLimit)
		return errors.WithContext(err, "total_bytes_limit", l.TotalBytesLimit)
	}
	return nil
}

// LoadLimits reads Limits from the environment (CACHE_POOL_TOTAL_BYTES_LIMIT).
func LoadLimits() (Limits, error) {
	l, err := env.ParseAs[Limits]()
	if err != nil {
		return Limits{}, errors.Wrap(err, errors.CodeInvalidConfig, "cache: parse limits from environment")
	}
	if err := l.Validate(); err != nil {
		return Limits{}, err
	}
	return l, nil
}
