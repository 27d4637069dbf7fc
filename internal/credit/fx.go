package credit

import (
	"github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/credit/repository"
	"github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/credit/service"
	"github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/observability/metrics"
	"go.uber.org/fx"
)

var Module = fx.Module("credit",
	fx.Provide(
		metrics.Default,
		repository.New,
		service.NewService,
	),
)
