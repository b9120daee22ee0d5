package out

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gametrack/internal/modules/catalog/domain"
	catalogout "gametrack/internal/modules/catalog/port/out"
)

const fetchTimeout = 15 * time.Second

type signaturePayload struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Executables []string `json:"executable_names"`
}

// HTTPSignatureSource fetches the catalog from the remote service as a
// JSON array of signatures.
type HTTPSignatureSource struct {
	url    string
	token  string
	client *http.Client
}

func NewHTTPSignatureSource(url, token string) catalogout.SignatureSource {
	return &HTTPSignatureSource{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: fetchTimeout},
	}
}

func (s *HTTPSignatureSource) Fetch(ctx context.Context) ([]domain.Signature, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch catalog: unexpected status %d", resp.StatusCode)
	}

	payload := []signaturePayload{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	signatures := make([]domain.Signature, 0, len(payload))
	for _, item := range payload {
		signatures = append(signatures, domain.Signature{
			ID:          item.ID,
			Name:        item.Name,
			Category:    item.Category,
			Executables: item.Executables,
		})
	}
	return signatures, nil
}
