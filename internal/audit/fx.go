package audit

import (
	"github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit",
	fx.Provide(service.NewService),
)
