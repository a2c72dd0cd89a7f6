package clamd

import (
	"context"

	"github.com/remeh/sizedwaitgroup"
)

// ScanMany scans paths over the primary transport with at most parallelism scans
// in flight. Results are sent as they complete; the channel is closed when every
// path has been scanned or ctx is done. If the consumer stops reading, workers
// exit on ctx.Done() so nothing leaks.
func (c *Client) ScanMany(ctx context.Context, paths []string, parallelism int) <-chan BatchResult {
	if parallelism < 1 {
		parallelism = 1
	}
	results := make(chan BatchResult, parallelism)

	go func() {
		defer close(results)

		swg := sizedwaitgroup.New(parallelism)
		for _, p := range paths {
			if err := swg.AddWithContext(ctx); err != nil {
				break
			}
			go func(path string) {
				defer swg.Done()
				res, err := c.ScanFile(ctx, path)
				select {
				case results <- BatchResult{Path: path, Result: res, Err: err}:
				case <-ctx.Done():
				}
			}(p)
		}
		swg.Wait()
	}()

	return results
}
