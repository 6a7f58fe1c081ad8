package entitlement

import (
	"github.com/smallbiznis/entitle/internal/entitlement/repository"
	"github.com/smallbiznis/entitle/internal/entitlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("entitlement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
