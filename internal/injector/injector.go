//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/zeuscript/internal/host"
)

func InitializeHost(config host.Config) (*host.Host, error) {
	wire.Build(ProviderSet)
	return nil, nil
}
