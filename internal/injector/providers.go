package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/zeuscript/internal/core/loader"
	"github.com/zeusync/zeuscript/internal/core/observability/log"
	"github.com/zeusync/zeuscript/internal/host"
)

// ProviderSet builds a Host from its Config.
var ProviderSet = wire.NewSet(ProvideLogger, ProvideNatives, host.New)

// ProvideLogger builds the process logger at the configured level.
func ProvideLogger(config host.Config) log.Log {
	return log.New(config.Level())
}

// ProvideNatives returns the registry for Go-implemented scripts.
func ProvideNatives() *loader.Natives {
	return loader.NewNatives()
}
