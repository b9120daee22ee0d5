package out

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"gametrack/internal/modules/sync/domain"
	syncout "gametrack/internal/modules/sync/port/out"
	apperrors "gametrack/internal/platform/errors"
)

const requestTimeout = 15 * time.Second

// HTTPRemote talks to the session service over its JSON API. Every call
// is a single attempt; retry policy belongs to the caller, which knows
// whether a periodic tick will come back for the item anyway.
type HTTPRemote struct {
	baseURL  string
	apiToken string
	client   *http.Client
}

func NewHTTPRemote(baseURL, apiToken string) *HTTPRemote {
	return &HTTPRemote{
		baseURL:  baseURL,
		apiToken: apiToken,
		client:   &http.Client{Timeout: requestTimeout},
	}
}

type beginPayload struct {
	SubjectID string    `json:"subject_id"`
	GameName  string    `json:"game_name"`
	Category  string    `json:"category"`
	StartedAt time.Time `json:"started_at"`
	DeviceID  string    `json:"device_id"`
	ClientRef string    `json:"client_ref"`
}

type beginReply struct {
	SessionID     string `json:"session_id"`
	AlreadyActive bool   `json:"already_active"`
}

type endPayload struct {
	SubjectID   string    `json:"subject_id"`
	GameName    string    `json:"game_name"`
	Category    string    `json:"category"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	DurationMin int       `json:"duration_min"`
	DeviceID    string    `json:"device_id"`
	ClientRef   string    `json:"client_ref"`
}

type endReply struct {
	SessionID string `json:"session_id"`
}

type remoteSessionReply struct {
	ID          string    `json:"id"`
	GameName    string    `json:"game_name"`
	Category    string    `json:"category"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	DurationMin *int      `json:"duration_min"`
}

type heartbeatReply struct {
	SyncedAt time.Time `json:"synced_at"`
}

type errorReply struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (r *HTTPRemote) Begin(ctx context.Context, req syncout.BeginRequest) (syncout.BeginResponse, error) {
	payload := beginPayload{
		SubjectID: req.SubjectID,
		GameName:  req.GameName,
		Category:  req.Category,
		StartedAt: req.StartedAt,
		DeviceID:  req.DeviceID,
		ClientRef: req.ClientRef,
	}
	var reply beginReply
	if err := r.post(ctx, "/api/v1/sessions/begin", payload, &reply); err != nil {
		return syncout.BeginResponse{}, err
	}
	return syncout.BeginResponse{SessionID: reply.SessionID, AlreadyActive: reply.AlreadyActive}, nil
}

func (r *HTTPRemote) End(ctx context.Context, req syncout.EndRequest) (syncout.EndResponse, error) {
	payload := endPayload{
		SubjectID:   req.SubjectID,
		GameName:    req.GameName,
		Category:    req.Category,
		StartedAt:   req.StartedAt,
		EndedAt:     req.EndedAt,
		DurationMin: req.DurationMin,
		DeviceID:    req.DeviceID,
		ClientRef:   req.ClientRef,
	}
	var reply endReply
	if err := r.post(ctx, "/api/v1/sessions/end", payload, &reply); err != nil {
		return syncout.EndResponse{}, err
	}
	return syncout.EndResponse{SessionID: reply.SessionID}, nil
}

func (r *HTTPRemote) Pull(ctx context.Context, subjectID string, limit int) ([]domain.RemoteSession, error) {
	query := url.Values{}
	query.Set("subject_id", subjectID)
	query.Set("limit", strconv.Itoa(limit))

	var replies []remoteSessionReply
	if err := r.get(ctx, "/api/v1/sessions?"+query.Encode(), &replies); err != nil {
		return nil, err
	}

	sessions := make([]domain.RemoteSession, 0, len(replies))
	for _, reply := range replies {
		sessions = append(sessions, domain.RemoteSession{
			ID:          reply.ID,
			GameName:    reply.GameName,
			Category:    reply.Category,
			StartedAt:   reply.StartedAt,
			EndedAt:     reply.EndedAt,
			DurationMin: reply.DurationMin,
		})
	}
	return sessions, nil
}

func (r *HTTPRemote) Heartbeat(ctx context.Context, subjectID string) (syncout.HeartbeatResponse, error) {
	query := url.Values{}
	query.Set("subject_id", subjectID)

	var reply heartbeatReply
	if err := r.get(ctx, "/api/v1/heartbeat?"+query.Encode(), &reply); err != nil {
		return syncout.HeartbeatResponse{}, err
	}
	return syncout.HeartbeatResponse{SyncedAt: reply.SyncedAt}, nil
}

func (r *HTTPRemote) post(ctx context.Context, path string, payload any, reply any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return r.do(req, reply)
}

func (r *HTTPRemote) get(ctx context.Context, path string, reply any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return err
	}
	return r.do(req, reply)
}

func (r *HTTPRemote) do(req *http.Request, reply any) error {
	if r.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiToken)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("session service request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(reply); err != nil {
		return fmt.Errorf("decode session service response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var reply errorReply
	if err := json.Unmarshal(body, &reply); err == nil && reply.Error.Code != "" {
		if reply.Error.Code == "subject_not_found" {
			return fmt.Errorf("%w: %s", apperrors.ErrSubjectNotFound, reply.Error.Message)
		}
		return fmt.Errorf("session service: %s (%s)", reply.Error.Message, reply.Error.Code)
	}
	if resp.StatusCode == http.StatusNotFound {
		return apperrors.ErrSubjectNotFound
	}
	return fmt.Errorf("session service: unexpected status %d", resp.StatusCode)
}
