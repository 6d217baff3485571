package visits_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k1networth/syncbridge/internal/remote"
	"github.com/k1networth/syncbridge/internal/visits"
)

type fakeComparisonTarget struct {
	count  int64
	ids    []string
	visits map[string]visits.LegacyVisit
}

func (t *fakeComparisonTarget) VisitCount(ctx context.Context) (int64, error) {
	return t.count, nil
}

func (t *fakeComparisonTarget) VisitIDs(ctx context.Context, offset, size int64) ([]string, error) {
	end := offset + size
	if end > int64(len(t.ids)) {
		end = int64(len(t.ids))
	}
	if offset >= int64(len(t.ids)) {
		return nil, nil
	}
	return t.ids[offset:end], nil
}

func (t *fakeComparisonTarget) GetVisitForComparison(ctx context.Context, visitID string) (visits.LegacyVisit, error) {
	v, ok := t.visits[visitID]
	if !ok {
		return visits.LegacyVisit{}, remote.ErrNotFound
	}
	return v, nil
}

func sampleVisit(id, status string) visits.Visit {
	return visits.Visit{
		ID:         id,
		OffenderNo: "A1234BC",
		PrisonID:   "MDI",
		StartTime:  time.Date(2026, 3, 4, 14, 0, 0, 0, time.UTC),
		EndTime:    time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC),
		VisitType:  "SOCIAL",
		Status:     status,
	}
}

func sampleLegacyVisit(id, status, createdBy string) visits.LegacyVisit {
	return visits.LegacyVisit{
		VisitID:    id,
		OffenderNo: "A1234BC",
		PrisonID:   "MDI",
		StartTime:  time.Date(2026, 3, 4, 14, 0, 0, 0, time.UTC),
		EndTime:    time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC),
		VisitType:  "SOCIAL",
		Status:     status,
		CreatedBy:  createdBy,
	}
}

func TestCheckItemAgreementYieldsNoMismatch(t *testing.T) {
	source := &fakeSource{visits: map[string]visits.Visit{"42": sampleVisit("42", "BOOKED")}}
	target := &fakeComparisonTarget{visits: map[string]visits.LegacyVisit{"42": sampleLegacyVisit("42", "BOOKED", "SYNC_USER")}}
	checker := visits.NewChecker(source, target, fastPolicy())

	m, err := checker.CheckItem(context.Background(), "42")
	require.NoError(t, err)
	assert.Nil(t, m, "author identity differs by design and must not count as a mismatch")
}

func TestCheckItemFieldDifferenceYieldsMismatch(t *testing.T) {
	source := &fakeSource{visits: map[string]visits.Visit{"42": sampleVisit("42", "BOOKED")}}
	target := &fakeComparisonTarget{visits: map[string]visits.LegacyVisit{"42": sampleLegacyVisit("42", "CANCELLED", "")}}
	checker := visits.NewChecker(source, target, fastPolicy())

	m, err := checker.CheckItem(context.Background(), "42")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "BOOKED", m.Source["status"])
	assert.Equal(t, "CANCELLED", m.Target["status"])
}

func TestCheckItemMissingFromOneSide(t *testing.T) {
	source := &fakeSource{visits: map[string]visits.Visit{"42": sampleVisit("42", "BOOKED")}}
	target := &fakeComparisonTarget{visits: map[string]visits.LegacyVisit{"43": sampleLegacyVisit("43", "BOOKED", "")}}
	checker := visits.NewChecker(source, target, fastPolicy())

	onlySource, err := checker.CheckItem(context.Background(), "42")
	require.NoError(t, err)
	require.NotNil(t, onlySource)
	assert.NotNil(t, onlySource.Source)
	assert.Nil(t, onlySource.Target)

	onlyTarget, err := checker.CheckItem(context.Background(), "43")
	require.NoError(t, err)
	require.NotNil(t, onlyTarget)
	assert.Nil(t, onlyTarget.Source)
	assert.NotNil(t, onlyTarget.Target)
}

func TestCheckItemMissingFromBothIsAgreement(t *testing.T) {
	source := &fakeSource{visits: map[string]visits.Visit{}}
	target := &fakeComparisonTarget{visits: map[string]visits.LegacyVisit{}}
	checker := visits.NewChecker(source, target, fastPolicy())

	m, err := checker.CheckItem(context.Background(), "42")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestCheckerEnumeratesFromTarget(t *testing.T) {
	source := &fakeSource{visits: map[string]visits.Visit{}}
	target := &fakeComparisonTarget{count: 3, ids: []string{"1", "2", "3"}}
	checker := visits.NewChecker(source, target, fastPolicy())

	n, err := checker.PopulationSize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	ids, err := checker.PageOfIDs(context.Background(), 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids)
}
