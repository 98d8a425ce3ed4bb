// Package interceptors holds the named registry of chain interceptors and
// builds per-service chains from config bindings.
//
// Interceptor packages register themselves from init(); the host imports
// them for side effects.
package interceptors

import (
	"log/slog"

	"github.com/jose/handlerchain/internal/chain"
)

// NewInterceptor builds a chain entry from a profile config map.
// conf is [http.interceptors.<name>.profiles.<profile>] and may be nil.
type NewInterceptor func(conf map[string]any, log *slog.Logger) (chain.Entry, error)
