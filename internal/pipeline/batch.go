package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Batch runs many requests through one Pipeline with bounded parallelism.
// The zero Concurrency processes requests strictly one after another.
type Batch struct {
	Pipeline    *Pipeline
	Concurrency int
}

// Run processes reqs and returns their outcomes in input order. onDone, if
// set, is called once per request as it finishes; calls are serialized.
// Requests not yet started when ctx is cancelled fail as unexpected.
func (b *Batch) Run(ctx context.Context, reqs []Request, onDone func(i int, out Outcome)) []Outcome {
	limit := b.Concurrency
	if limit < 1 {
		limit = 1
	}

	outs := make([]Outcome, len(reqs))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(limit)

	for i, req := range reqs {
		g.Go(func() error {
			var out Outcome
			if err := ctx.Err(); err != nil {
				out = Outcome{Stage: StateFailed, Failure: newFailure(KindUnexpected, StateValidatingReference, err)}
			} else {
				out = b.Pipeline.Run(ctx, req)
			}
			outs[i] = out

			if onDone != nil {
				mu.Lock()
				onDone(i, out)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return outs
}
