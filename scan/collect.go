package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/panjf2000/ants/v2"
)

// Collect reads every partition of cfg on a pool of poolSize workers and
// returns the batches of each partition in order. On error nothing is
// returned and all batches are released.
func Collect(ctx context.Context, cfg *Config, env Env, poolSize int) ([][]arrow.Record, error) {
	n := cfg.OutputPartitioning()
	if n == 0 {
		return [][]arrow.Record{}, nil
	}
	if poolSize <= 0 || poolSize > n {
		poolSize = n
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool, err := ants.NewPool(poolSize, ants.WithPanicHandler(func(v any) {
		logger.Error().Interface("panic", v).Msg("scan partition panicked")
	}))
	if err != nil {
		return nil, fmt.Errorf("error in ants.NewPool: %w", err)
	}
	defer pool.Release()

	results := make([][]arrow.Record, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		errs[i] = fmt.Errorf("partition %d did not complete", i)
		err := pool.Submit(func() {
			defer wg.Done()
			results[i], errs[i] = collectPartition(ctx, cfg, i, env)
			if errs[i] != nil {
				cancel()
			}
		})
		if err != nil {
			wg.Done()
			errs[i] = fmt.Errorf("error submitting partition %d: %w", i, err)
			cancel()
			break
		}
	}
	wg.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			failed = append(failed, err)
		}
	}
	if len(failed) == 0 && ctx.Err() != nil {
		// only cancellations, report the parent's error
		for _, err := range errs {
			if err != nil {
				failed = append(failed, err)
				break
			}
		}
	}
	if len(failed) > 0 {
		for _, batches := range results {
			for _, b := range batches {
				b.Release()
			}
		}
		return nil, errors.Join(failed...)
	}
	return results, nil
}

func collectPartition(ctx context.Context, cfg *Config, partition int, env Env) ([]arrow.Record, error) {
	stream, err := cfg.Open(ctx, partition, env)
	if err != nil {
		return nil, fmt.Errorf("error opening partition %d: %w", partition, err)
	}
	defer stream.Release()

	var batches []arrow.Record
	for stream.Next() {
		rec := stream.Record()
		rec.Retain()
		batches = append(batches, rec)
	}
	if err := stream.Err(); err != nil {
		for _, b := range batches {
			b.Release()
		}
		return nil, fmt.Errorf("error reading partition %d: %w", partition, err)
	}
	return batches, nil
}
