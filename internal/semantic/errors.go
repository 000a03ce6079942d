package semantic

import "errors"

// errEngineUnavailable is returned by phrase-level queries when no
// embedding engine is configured. Callers treat it as "use fallback",
// not as a request failure.
var errEngineUnavailable = errors.New("embedding engine unavailable")

// IsUnavailable reports whether err means the oracle cannot answer
// semantic queries at all.
func IsUnavailable(err error) bool {
	return errors.Is(err, errEngineUnavailable)
}
