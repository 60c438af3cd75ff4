/*
Package report produces the AI-written narrative sales report.

PURPOSE:
  Combines the current month's snapshot with the earlier months of the
  same year, renders a prompt and hands it to a text generator.

FLOW:
  1. History.GetOrCreateCurrentMonth (aggregates when absent)
  2. History.ReconstructYear for the current year
  3. Keep months before the current one
  4. BuildPrompt, then Generator.Generate

ERRORS:
  Aggregation and history errors pass through unchanged. Only a generator
  failure becomes ErrReportGenerationFailed. Nothing is retried.

SEE ALSO:
  - commerce/history.go: GetOrCreateCurrentMonth, ReconstructYear
  - report/generator.go: Gemini client and circuit breaker
*/
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/backoffice/commerce"
	"github.com/warp/backoffice/metrics"
)

type Report struct {
	Snapshot    commerce.Snapshot   `json:"snapshot"`
	History     []commerce.Snapshot `json:"history"`
	Narrative   string              `json:"narrative"`
	GeneratedAt time.Time           `json:"generatedAt"`
}

type Service struct {
	History   *commerce.History
	Products  commerce.ProductStore
	Generator Generator
	Metrics   *metrics.Metrics
	Logger    logrus.FieldLogger
	Now       func() time.Time
}

func (s *Service) Generate(ctx context.Context) (*Report, error) {
	started := time.Now()
	rep, err := s.generate(ctx)
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.Outcome(commerce.KindOf(err))
	}
	s.Metrics.RecordReport(outcome, time.Since(started))
	return rep, err
}

func (s *Service) generate(ctx context.Context) (*Report, error) {
	current, err := s.History.GetOrCreateCurrentMonth(ctx)
	if err != nil {
		return nil, err
	}

	year, err := s.History.ReconstructYear(ctx, current.Period.Year)
	if err != nil {
		return nil, err
	}
	earlier := make([]commerce.Snapshot, 0, len(year))
	for _, snap := range year {
		if snap.Period.Month < current.Period.Month {
			earlier = append(earlier, snap)
		}
	}

	prompt, err := BuildPrompt(PromptInput{
		Current:  *current,
		Earlier:  earlier,
		Products: s.productIndex(ctx),
	})
	if err != nil {
		return nil, commerce.Internal("build report prompt", err)
	}

	narrative, err := s.Generator.Generate(ctx, prompt)
	if err != nil {
		s.logger().WithFields(logrus.Fields{
			"module":   "report",
			"function": "Generate",
			"period":   current.Period.String(),
		}).WithError(err).Error("narrative generation failed")
		return nil, fmt.Errorf("%w: %w", commerce.ErrReportGenerationFailed, err)
	}

	return &Report{
		Snapshot:    *current,
		History:     earlier,
		Narrative:   narrative,
		GeneratedAt: s.now(),
	}, nil
}

// productIndex is best effort: without it the prompt carries IDs only.
func (s *Service) productIndex(ctx context.Context) map[commerce.ProductID]commerce.Product {
	index := make(map[commerce.ProductID]commerce.Product)
	if s.Products == nil {
		return index
	}
	products, err := s.Products.ListProducts(ctx)
	if err != nil {
		s.logger().WithError(err).Warn("report: product names unavailable")
		return index
	}
	for _, p := range products {
		index[p.ID] = p
	}
	return index
}

func (s *Service) logger() logrus.FieldLogger {
	if s.Logger == nil {
		return logrus.StandardLogger()
	}
	return s.Logger
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}
