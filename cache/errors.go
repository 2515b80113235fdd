package cache

import "github.com/jmgilman/go/errors"

// ErrNilCache is returned by GetCache when the factory returns a nil cache
// without an error.
var ErrNilCache = errors.New(errors.CodeInternal, "cache: factory returned nil cache")

// factoryError wraps a failing cache factory with the lookup key.
func factoryError(err error, typ, key string) error {
	werr := errors.Wrap(err, errors.CodeExecutionFailed, "cache: factory failed")
	return errors.WithContextMap(werr, map[string]interface{}{
		"cache_type": typ,
		"cache_key":  key,
	})
}
