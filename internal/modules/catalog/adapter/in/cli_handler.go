package in

import (
	"context"

	catalogdto "gametrack/internal/modules/catalog/dto"
	catalogin "gametrack/internal/modules/catalog/port/in"
)

type CLIHandler struct {
	usecase catalogin.Usecase
}

func NewCLIHandler(usecase catalogin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) Refresh(ctx context.Context) (catalogdto.CatalogStatusOutput, error) {
	return h.usecase.Reload(ctx)
}

func (h CLIHandler) List(ctx context.Context) []catalogdto.SignatureOutput {
	return h.usecase.List(ctx)
}

func (h CLIHandler) Match(ctx context.Context, processName string) (catalogdto.MatchOutput, bool) {
	return h.usecase.Match(ctx, processName)
}
