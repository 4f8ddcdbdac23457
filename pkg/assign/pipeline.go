package assign

import (
	"context"
	"sync/atomic"

	"github.com/praetorian-inc/ssoctl/pkg/ssotypes"
)

// Item is one element of a resolver's output stream: either an Assignment
// or a terminal error. Once Err is set the stream ends.
type Item struct {
	Assignment ssotypes.Assignment
	Err        error
}

// generator runs produce in a goroutine, closing the returned channel when
// produce returns or ctx is canceled. This is the channel-producer core of
// a generic Stage[I,O] pipeline primitive, pared down to what a single
// fixed three-level nested pipeline (target outer, permission-set middle,
// principal inner) needs: no dynamic stage chaining or reflection-based
// signature checking, just a goroutine writing to a channel.
func generator(ctx context.Context, produce func(emit func(Item) bool)) <-chan Item {
	out := make(chan Item)
	go func() {
		defer close(out)
		var failed atomic.Bool
		produce(func(item Item) bool {
			if item.Err != nil {
				if !failed.CompareAndSwap(false, true) {
					return false
				}
			} else if failed.Load() {
				return false
			}
			select {
			case out <- item:
				return item.Err == nil && ctx.Err() == nil
			case <-ctx.Done():
				return false
			}
		})
	}()
	return out
}
