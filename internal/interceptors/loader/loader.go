// Package loader triggers interceptor registration via blank imports.
// Import this package to ensure all interceptors are registered with the registry.
package loader

import (
	_ "github.com/jose/handlerchain/internal/interceptors/loadingtime"
	_ "github.com/jose/handlerchain/internal/interceptors/metrics"
	_ "github.com/jose/handlerchain/internal/interceptors/ratelimit"
)
