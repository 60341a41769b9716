package usecase

import (
	"sync"
	"time"

	"github.com/vitos/crypto_market_table/internal/domain"
	"go.uber.org/zap"
)

// DatasetView holds the latest rows in provider order together with the
// active sort spec, and publishes the combined ordered Dataset to listeners.
// Rows slices handed out are never modified after publication.
type DatasetView struct {
	// notifyMu serialises mutation+delivery so listeners see versions in order.
	notifyMu sync.Mutex

	mu        sync.RWMutex
	base      []domain.Row
	current   domain.Dataset
	listeners map[int]func(domain.Dataset)
	nextID    int

	logger  *zap.Logger
	timeNow func() time.Time // For testing
}

func NewDatasetView(logger *zap.Logger) *DatasetView {
	return &DatasetView{
		current:   domain.Dataset{Rows: []domain.Row{}},
		listeners: make(map[int]func(domain.Dataset)),
		logger:    logger,
		timeNow:   time.Now,
	}
}

// Current returns a copy of the published Dataset.
func (v *DatasetView) Current() domain.Dataset {
	v.mu.RLock()
	defer v.mu.RUnlock()

	ds := v.current
	ds.Rows = make([]domain.Row, len(v.current.Rows))
	copy(ds.Rows, v.current.Rows)
	return ds
}

func (v *DatasetView) SortSpec() domain.SortSpec {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current.Sort
}

// OnUpdate registers fn to receive every new Dataset. Listeners run
// synchronously on the publishing goroutine and must not modify Rows.
// The returned func removes the listener.
func (v *DatasetView) OnUpdate(fn func(domain.Dataset)) (unsubscribe func()) {
	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.listeners[id] = fn
	v.mu.Unlock()

	return func() {
		v.mu.Lock()
		delete(v.listeners, id)
		v.mu.Unlock()
	}
}

// RequestSort toggles the sort state for col and re-sorts the rows already
// held. It never touches the network.
func (v *DatasetView) RequestSort(col domain.Column) (domain.Dataset, error) {
	if _, err := domain.ParseColumn(string(col)); err != nil {
		return domain.Dataset{}, err
	}

	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()

	v.mu.Lock()
	spec := domain.Toggle(v.current.Sort, col)
	ds := v.commitLocked(v.base, spec, v.current.UpdatedAt)
	listeners := v.snapshotListenersLocked()
	v.mu.Unlock()

	v.logger.Debug("Sort changed",
		zap.String("column", string(spec.Column)),
		zap.String("direction", spec.Direction.String()))
	notify(listeners, ds)
	return ds, nil
}

// Publish replaces the rows with a fresh snapshot, keeping the sort spec.
func (v *DatasetView) Publish(rows []domain.Row) domain.Dataset {
	base := make([]domain.Row, len(rows))
	copy(base, rows)

	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()

	v.mu.Lock()
	v.base = base
	ds := v.commitLocked(base, v.current.Sort, v.timeNow())
	listeners := v.snapshotListenersLocked()
	v.mu.Unlock()

	notify(listeners, ds)
	return ds
}

func (v *DatasetView) commitLocked(base []domain.Row, spec domain.SortSpec, updatedAt time.Time) domain.Dataset {
	v.current = domain.Dataset{
		Rows:      SortRows(base, spec),
		Sort:      spec,
		Version:   v.current.Version + 1,
		UpdatedAt: updatedAt,
	}
	return v.current
}

func (v *DatasetView) snapshotListenersLocked() []func(domain.Dataset) {
	out := make([]func(domain.Dataset), 0, len(v.listeners))
	for _, fn := range v.listeners {
		out = append(out, fn)
	}
	return out
}

func notify(listeners []func(domain.Dataset), ds domain.Dataset) {
	for _, fn := range listeners {
		fn(ds)
	}
}
