package usecase

import (
	"context"

	catalogdto "gametrack/internal/modules/catalog/dto"
	catalogin "gametrack/internal/modules/catalog/port/in"
	"gametrack/internal/modules/catalog/service"
)

type Interactor struct {
	svc *service.CatalogService
}

func NewInteractor(svc *service.CatalogService) catalogin.Usecase {
	return &Interactor{svc: svc}
}

func (i *Interactor) Reload(ctx context.Context) (catalogdto.CatalogStatusOutput, error) {
	count, refreshedAt, err := i.svc.Reload(ctx)
	return catalogdto.CatalogStatusOutput{Signatures: count, RefreshedAt: refreshedAt}, err
}

func (i *Interactor) Match(_ context.Context, processName string) (catalogdto.MatchOutput, bool) {
	sig, ok := i.svc.Match(processName)
	if !ok {
		return catalogdto.MatchOutput{}, false
	}
	return catalogdto.MatchOutput{SignatureID: sig.ID, GameName: sig.Name, Category: sig.Category}, true
}

func (i *Interactor) List(_ context.Context) []catalogdto.SignatureOutput {
	signatures := i.svc.List()
	out := make([]catalogdto.SignatureOutput, 0, len(signatures))
	for _, sig := range signatures {
		out = append(out, catalogdto.SignatureOutput{
			ID:          sig.ID,
			Name:        sig.Name,
			Category:    sig.Category,
			Executables: sig.Executables,
		})
	}
	return out
}

func (i *Interactor) Status(_ context.Context) catalogdto.CatalogStatusOutput {
	count, refreshedAt := i.svc.Status()
	return catalogdto.CatalogStatusOutput{Signatures: count, RefreshedAt: refreshedAt}
}
