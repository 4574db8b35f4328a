package enrich

import (
	"time"

	"go.uber.org/zap"
)

// defaultProgressEvery is the row cadence for progress logging.
const defaultProgressEvery = 5

// Reporter logs batch progress on the first row, every Nth row, and the last
// row, with elapsed time and a remaining-time estimate from the mean
// per-record rate.
type Reporter struct {
	label string
	total int
	every int
	start time.Time
	clock func() time.Time
}

// NewReporter creates a Reporter for a batch of the given size.
func NewReporter(label string, total, every int) *Reporter {
	if every <= 0 {
		every = defaultProgressEvery
	}
	r := &Reporter{label: label, total: total, every: every, clock: time.Now}
	r.start = r.clock()
	return r
}

// Step records that `done` records have completed and logs when the cadence
// says so.
func (r *Reporter) Step(done int) {
	if done != 1 && done != r.total && done%r.every != 0 {
		return
	}

	elapsed := r.clock().Sub(r.start)
	fields := []zap.Field{
		zap.String("pass", r.label),
		zap.Int("done", done),
		zap.Int("total", r.total),
		zap.Duration("elapsed", elapsed.Round(time.Second)),
	}
	if done > 0 && done < r.total {
		rate := elapsed / time.Duration(done)
		eta := rate * time.Duration(r.total-done)
		fields = append(fields, zap.Duration("eta", eta.Round(time.Second)))
	}
	zap.L().Info("progress", fields...)
}
