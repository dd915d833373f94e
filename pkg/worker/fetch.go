package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/Mindburn-Labs/homestar/pkg/workflow"
)

// NetworkFetcher retrieves a Resource's bytes from the peer network, for
// when the local blob store doesn't already have them cached. Homestar's
// own peer-to-peer transport (pkg/p2p) implements this over the
// content-routing DHT.
type NetworkFetcher interface {
	FetchResource(ctx context.Context, resource workflow.Resource) ([]byte, error)
}

// Gossip publishes a completed receipt to the peer network so other
// nodes can resolve an await on it without recomputing it.
type Gossip interface {
	PublishReceipt(ctx context.Context, receipt workflow.Receipt) error
}

// fetchResource tries the local cache first, then the network fetcher,
// caching a network hit back into the local store for next time.
func (w *Worker) fetchResource(ctx context.Context, r workflow.Resource) ([]byte, error) {
	key := r.String()

	if w.local != nil {
		if b, ok, err := w.local.Get(ctx, key); err != nil {
			return nil, err
		} else if ok {
			return b, nil
		}
	}

	if w.network == nil {
		return nil, newError(ErrResourceUnavailable, "no network fetcher configured for "+key)
	}
	b, err := w.network.FetchResource(ctx, r)
	if err != nil {
		return nil, err
	}
	if w.local != nil {
		if err := w.local.Put(ctx, key, b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// fetchResourceRetrying wraps fetchResource with the worker's configured
// retry policy. A missing network fetcher is not retried, since nothing
// about retrying would change that.
func (w *Worker) fetchResourceRetrying(ctx context.Context, r workflow.Resource) ([]byte, error) {
	var result []byte
	err := retryWithBackoff(ctx, w.cfg.Retries, w.cfg.RetryBaseDelay, func(err error) bool {
		var werr *Error
		if errors.As(err, &werr) && werr.Code == ErrResourceUnavailable {
			return false
		}
		return true
	}, func() error {
		b, err := w.fetchResource(ctx, r)
		if err != nil {
			return err
		}
		result = b
		return nil
	})
	return result, err
}

// prefetchExternalResources fetches every resource concurrently,
// populating a map keyed by Resource.String(). A resource that can't be
// fetched is silently omitted rather than aborting the run: the
// resolver still falls through to the receipt store and peer lookup for
// any task that actually needs it, surfacing UnresolvedFingerprint only
// if every source fails.
func (w *Worker) prefetchExternalResources(ctx context.Context, resources []workflow.Resource) map[string][]byte {
	out := make(map[string][]byte, len(resources))
	if len(resources) == 0 {
		return out
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, r := range resources {
		r := r
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := w.fetchResourceRetrying(ctx, r)
			if err != nil {
				return
			}
			mu.Lock()
			out[r.String()] = b
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}
