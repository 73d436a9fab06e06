package batch

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/dunamismax/pixelconvert/internal/convert"
)

type ItemResult struct {
	Input  string         `json:"input"`
	Output string         `json:"output"`
	Result convert.Result `json:"result"`
	Err    error          `json:"-"`
	Error  string         `json:"error,omitempty"`
}

type Report struct {
	Items     []ItemResult  `json:"items"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Run converts every item in order. A failing item is recorded and the batch
// moves on; only context cancellation stops it early, and the remaining items
// are reported with the context error.
func Run(ctx context.Context, m Manifest, logger *log.Logger, opts ...convert.Option) Report {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	startedAt := time.Now()
	report := Report{Items: make([]ItemResult, 0, len(m.Conversions))}

	for i, item := range m.Conversions {
		res := ItemResult{Input: m.resolve(item.Input)}

		if err := ctx.Err(); err != nil {
			res.Err = err
		} else {
			res.Output, res.Result, res.Err = runItem(ctx, m, item, logger, opts)
		}

		if res.Err != nil {
			res.Error = res.Err.Error()
			report.Failed++
			logger.Printf("batch item failed index=%d input=%s err=%v", i, res.Input, res.Err)
		} else {
			report.Succeeded++
		}
		report.Items = append(report.Items, res)
	}

	report.Duration = time.Since(startedAt)
	logger.Printf("batch finished items=%d succeeded=%d failed=%d duration=%s",
		len(report.Items), report.Succeeded, report.Failed, report.Duration)
	return report
}

func runItem(ctx context.Context, m Manifest, item Item, logger *log.Logger, opts []convert.Option) (string, convert.Result, error) {
	target, err := m.targetFor(item)
	if err != nil {
		return "", convert.Result{}, err
	}

	output := m.outputFor(item, target)

	itemOpts := append([]convert.Option{convert.WithLogger(logger)}, opts...)
	if q, ok := m.qualityFor(item); ok {
		itemOpts = append(itemOpts, convert.WithQuality(q))
	}
	itemOpts = append(itemOpts, convert.WithCreateOutputDir())

	c, err := convert.New(m.resolve(item.Input), output, target.String(), itemOpts...)
	if err != nil {
		return output, convert.Result{}, err
	}
	result, err := c.Convert(ctx)
	if err != nil {
		return output, result, err
	}
	return output, result, result.Err()
}
