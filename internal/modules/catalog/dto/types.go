package dto

import "time"

type SignatureOutput struct {
	ID          string
	Name        string
	Category    string
	Executables []string
}

type MatchOutput struct {
	SignatureID string
	GameName    string
	Category    string
}

type CatalogStatusOutput struct {
	Signatures  int
	RefreshedAt time.Time
}
