package crawler

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/amosWeiskopf/listingsmith/internal/models"
)

// entry is one queued URL with the node it was discovered from
type entry struct {
	url    string
	parent models.NodeID
	depth  int
	id     models.NodeID // set when the entry is taken
}

// frontier is the FIFO of URLs to fetch together with the visited set and
// the hierarchy. All three change under one lock, so a URL is taken at most
// once and its node always attaches to its first-seen parent.
type frontier struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    *list.List
	seen     map[string]struct{} // queued or visited
	visited  VisitedSet
	hier     *models.Hierarchy
	maxPages int
	inFlight int
	closed   bool
}

func newFrontier(seed string, maxPages int, visited VisitedSet) *frontier {
	f := &frontier{
		queue:    list.New(),
		seen:     map[string]struct{}{seed: {}},
		visited:  visited,
		hier:     models.NewHierarchy(),
		maxPages: maxPages,
	}
	f.cond = sync.NewCond(&f.mu)
	f.queue.PushBack(entry{url: seed, parent: models.NoParent})
	return f
}

// next blocks until an entry is available and takes it, marking it visited
// and adding its node. It reports false once the crawl is over: the queue is
// empty with nothing in flight, the page cap is reached or ctx is done.
func (f *frontier) next(ctx context.Context) (entry, bool, error) {
	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	defer stop()

	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		if f.closed || ctx.Err() != nil {
			return entry{}, false, nil
		}
		if f.hier.Len() >= f.maxPages {
			f.close()
			return entry{}, false, nil
		}
		if f.queue.Len() == 0 {
			if f.inFlight == 0 {
				f.close()
				return entry{}, false, nil
			}
			f.cond.Wait()
			continue
		}

		e := f.queue.Remove(f.queue.Front()).(entry)
		added, err := f.visited.Add(ctx, e.url)
		if err != nil {
			f.close()
			return entry{}, false, fmt.Errorf("visited set: %w", err)
		}
		if !added {
			continue
		}
		e.id = f.hier.Add(e.url, e.parent)
		f.inFlight++
		return e, true, nil
	}
}

// done releases e and queues the links found on its page at depth+1
func (f *frontier) done(e entry, links []string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, link := range links {
		if _, ok := f.seen[link]; ok {
			continue
		}
		f.seen[link] = struct{}{}
		f.queue.PushBack(entry{url: link, parent: e.id, depth: e.depth + 1})
	}
	f.inFlight--
	f.cond.Broadcast()
}

func (f *frontier) close() {
	f.closed = true
	f.cond.Broadcast()
}

func (f *frontier) setTitle(id models.NodeID, title string) {
	f.mu.Lock()
	f.hier.SetTitle(id, title)
	f.mu.Unlock()
}

func (f *frontier) markFailed(id models.NodeID) {
	f.mu.Lock()
	f.hier.MarkFailed(id)
	f.mu.Unlock()
}

// hierarchy returns the tree once every worker has stopped
func (f *frontier) hierarchy() *models.Hierarchy {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hier
}
