package capnp

import (
	"golang.org/x/sync/errgroup"
)

// ParallelTotalSize computes TotalSize for each of fields concurrently,
// returning the results in the same order. This is safe per §5's
// concurrency model: TotalSize only reads segment bytes and does not charge
// the traversal limiter (a reader's only mutable state), so concurrent walks
// of parts of the same message share nothing mutable; each walk is bounded
// by its nesting limit, not by the traversal budget. Useful for a generated
// accessor that needs the aggregate size of several large, independent
// fields (e.g. computing the space a copy would need) without walking them
// one at a time.
func ParallelTotalSize(fields []PointerReader) ([]MessageSize, error) {
	out := make([]MessageSize, len(fields))
	var g errgroup.Group
	for i, f := range fields {
		i, f := i, f
		g.Go(func() error {
			sz, err := f.TotalSize()
			if err != nil {
				return err
			}
			out[i] = sz
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
