// Package loader registers the cache drivers for their side effects.
//
//	import _ "github.com/jose/handlerchain/internal/platform/cache/loader"
package loader

import (
	_ "github.com/jose/handlerchain/internal/platform/cache/memory"
	_ "github.com/jose/handlerchain/internal/platform/cache/redis"
)
