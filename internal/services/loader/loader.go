// Package loader triggers service and interceptor registration via blank imports.
// Import this package to ensure everything is registered before services are built.
package loader

import (
	_ "github.com/jose/handlerchain/internal/interceptors/loader"
	_ "github.com/jose/handlerchain/internal/services/api"
	_ "github.com/jose/handlerchain/internal/services/app"
)
