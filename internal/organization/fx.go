package organization

import (
	"github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/organization/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("organization",
	fx.Provide(repository.New),
)
