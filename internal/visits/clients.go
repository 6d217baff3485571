// Package visits is the prison-visit domain wired through the sync and
// reconciliation engines: a source client for the canonical visit data,
// a target client for the legacy system, and the glue between them.
// Field mapping is deliberately thin.
package visits

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/k1networth/syncbridge/internal/remote"
)

type Visit struct {
	ID         string    `json:"id"`
	OffenderNo string    `json:"offenderNo"`
	PrisonID   string    `json:"prisonId"`
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	VisitType  string    `json:"visitType"`
	Status     string    `json:"status"`
}

// SourceClient reads canonical visits from the upstream system.
type SourceClient struct {
	c *remote.Client
}

func NewSourceClient(c *remote.Client) *SourceClient { return &SourceClient{c: c} }

func (s *SourceClient) GetVisit(ctx context.Context, id string) (Visit, error) {
	var v Visit
	if err := s.c.Get(ctx, "/visits/"+url.PathEscape(id), &v); err != nil {
		return Visit{}, err
	}
	return v, nil
}

type CreateVisitRequest struct {
	OffenderNo string    `json:"offenderNo"`
	PrisonID   string    `json:"prisonId"`
	StartTime  time.Time `json:"startDateTime"`
	EndTime    time.Time `json:"endDateTime"`
	VisitType  string    `json:"visitType"`
}

type CreateVisitResponse struct {
	VisitID string `json:"visitId"`
}

// LegacyVisit is the target system's comparable view of a visit.
type LegacyVisit struct {
	VisitID    string    `json:"visitId"`
	OffenderNo string    `json:"offenderNo"`
	PrisonID   string    `json:"prisonId"`
	StartTime  time.Time `json:"startDateTime"`
	EndTime    time.Time `json:"endDateTime"`
	VisitType  string    `json:"visitType"`
	Status     string    `json:"status"`
	// CreatedBy differs between the systems by design and is excluded
	// from comparison.
	CreatedBy string `json:"createdBy"`
}

// TargetClient mutates and reads the legacy system.
type TargetClient struct {
	c *remote.Client
}

func NewTargetClient(c *remote.Client) *TargetClient { return &TargetClient{c: c} }

func (t *TargetClient) CreateVisit(ctx context.Context, req CreateVisitRequest) (CreateVisitResponse, error) {
	var resp CreateVisitResponse
	path := fmt.Sprintf("/prisoners/%s/visits", url.PathEscape(req.OffenderNo))
	if err := t.c.Post(ctx, path, req, &resp); err != nil {
		return CreateVisitResponse{}, err
	}
	return resp, nil
}

func (t *TargetClient) CancelVisit(ctx context.Context, offenderNo, visitID string) error {
	path := fmt.Sprintf("/prisoners/%s/visits/%s", url.PathEscape(offenderNo), url.PathEscape(visitID))
	return t.c.Delete(ctx, path)
}

// VisitCount returns the size of the legacy visit population; the target
// system is authoritative for who exists during reconciliation.
func (t *TargetClient) VisitCount(ctx context.Context) (int64, error) {
	var out struct {
		Count int64 `json:"count"`
	}
	if err := t.c.Get(ctx, "/visits/count", &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (t *TargetClient) VisitIDs(ctx context.Context, offset, size int64) ([]string, error) {
	var out struct {
		IDs []string `json:"ids"`
	}
	path := fmt.Sprintf("/visits/ids?offset=%d&size=%d", offset, size)
	if err := t.c.Get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.IDs, nil
}

func (t *TargetClient) GetVisitForComparison(ctx context.Context, visitID string) (LegacyVisit, error) {
	var v LegacyVisit
	if err := t.c.Get(ctx, "/visits/"+url.PathEscape(visitID), &v); err != nil {
		return LegacyVisit{}, err
	}
	return v, nil
}
