// Package reconcile runs full-population diffs between the source and
// target systems. Event delivery is neither complete nor exactly-once,
// so a periodic sweep is the backstop: page through the population,
// compare both views of every entity, and report what disagrees. The
// engine owns iteration, concurrency and aggregation; what "equal"
// means for a given entity type is the checker's business.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/k1networth/syncbridge/internal/telemetry"
)

// Mismatch records one entity the two systems disagree on. A nil view
// means the entity is missing from that system entirely.
type Mismatch struct {
	ID     string            `json:"id"`
	Source map[string]string `json:"source,omitempty"`
	Target map[string]string `json:"target,omitempty"`
}

// Report is the immutable outcome of one reconciliation run.
type Report struct {
	Mismatches   []Mismatch
	ItemsChecked int
	PagesChecked int
	PageErrors   int
	ItemErrors   int
}

// ItemChecker supplies the domain-specific half of a run: how to
// enumerate the population and how to compare one entity. CheckItem
// returns a nil mismatch when the two views agree.
type ItemChecker interface {
	Name() string
	PopulationSize(ctx context.Context) (int64, error)
	PageOfIDs(ctx context.Context, offset, size int64) ([]string, error)
	CheckItem(ctx context.Context, id string) (*Mismatch, error)
}

type Engine struct {
	pageSize int64
	tel      telemetry.Recorder
	log      *slog.Logger
}

func New(pageSize int64, tel telemetry.Recorder, log *slog.Logger) *Engine {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Engine{pageSize: pageSize, tel: tel, log: log}
}

// Run reconciles the whole population. Pages are fetched sequentially;
// items within a page are checked concurrently, one goroutine per item,
// which bounds in-flight external calls to roughly pageSize*2. A failed
// page or item never aborts the run; only failing to read the population
// size does.
func (e *Engine) Run(ctx context.Context, checker ItemChecker) (Report, error) {
	name := checker.Name()

	size, err := checker.PopulationSize(ctx)
	if err != nil {
		e.tel.Track(name+"-reconciliation-report-failed", map[string]string{"reason": err.Error()})
		return Report{}, fmt.Errorf("%s reconciliation: population size: %w", name, err)
	}

	var report Report
	for offset := int64(0); offset < size; offset += e.pageSize {
		ids, err := checker.PageOfIDs(ctx, offset, e.pageSize)
		if err != nil {
			report.PageErrors++
			e.tel.Track(name+"-reconciliation-page-error", map[string]string{
				"offset":   strconv.FormatInt(offset, 10),
				"pageSize": strconv.FormatInt(e.pageSize, 10),
				"reason":   err.Error(),
			})
			e.log.Error("reconciliation_page_failed",
				slog.String("entity", name),
				slog.Int64("offset", offset),
				slog.String("err", err.Error()),
			)
			continue
		}

		report.PagesChecked++
		report.ItemsChecked += len(ids)
		report.Mismatches = append(report.Mismatches, e.checkPage(ctx, checker, ids, &report)...)
	}

	e.tel.Track(name+"-reconciliation-report", map[string]string{
		"items-checked":  strconv.Itoa(report.ItemsChecked),
		"pages-checked":  strconv.Itoa(report.PagesChecked),
		"mismatch-count": strconv.Itoa(len(report.Mismatches)),
		"page-errors":    strconv.Itoa(report.PageErrors),
		"item-errors":    strconv.Itoa(report.ItemErrors),
	})
	return report, nil
}

func (e *Engine) checkPage(ctx context.Context, checker ItemChecker, ids []string, report *Report) []Mismatch {
	name := checker.Name()
	results := make([]*Mismatch, len(ids))
	var itemErrors atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			m, err := checker.CheckItem(gctx, id)
			if err != nil {
				// No verdict for this item, not a mismatch.
				itemErrors.Add(1)
				e.tel.Track(name+"-reconciliation-item-error", map[string]string{
					"id":     id,
					"reason": err.Error(),
				})
				e.log.Error("reconciliation_item_failed",
					slog.String("entity", name),
					slog.String("id", id),
					slog.String("err", err.Error()),
				)
				return nil
			}
			results[i] = m
			return nil
		})
	}
	_ = g.Wait()

	report.ItemErrors += int(itemErrors.Load())

	var mismatches []Mismatch
	for _, m := range results {
		if m != nil {
			mismatches = append(mismatches, *m)
		}
	}
	return mismatches
}
