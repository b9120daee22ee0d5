package in

import (
	"context"

	"gametrack/internal/modules/catalog/dto"
)

type Usecase interface {
	// Reload fetches and swaps the signature set. On fetch failure the
	// previous catalog stays in memory and the error is returned.
	Reload(ctx context.Context) (dto.CatalogStatusOutput, error)
	// Match resolves a process name; the bool is false when no signature
	// applies.
	Match(ctx context.Context, processName string) (dto.MatchOutput, bool)
	List(ctx context.Context) []dto.SignatureOutput
	Status(ctx context.Context) dto.CatalogStatusOutput
}
