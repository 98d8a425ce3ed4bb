// Package loader registers the store drivers for their side effects.
package loader

import (
	_ "github.com/jose/handlerchain/internal/platform/store/memory"
	_ "github.com/jose/handlerchain/internal/platform/store/mirror"
	_ "github.com/jose/handlerchain/internal/platform/store/sqlite"
)
