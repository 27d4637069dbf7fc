package usage

import (
	"github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/usage/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("usage",
	fx.Provide(repository.New),
)
