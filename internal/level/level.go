// internal/level/level.go
package level

import (
	"fmt"
	"sort"
	"sync"

	"github.com/stockwise/forecaster/internal/domain"
)

// RecordKind names the entity kinds the upsert store handles.
type RecordKind string

const (
	KindForecastResult       RecordKind = "forecast_result"
	KindDemandClassification RecordKind = "demand_classification_result"
	KindServiceLevel         RecordKind = "service_level_result"
	KindSummarizeResult      RecordKind = "summarize_result"
)

// Strategy is the forecast-level extension point: it decides which columns
// form the natural key of each entity kind. Only the warehouse level is
// implemented; adding a level means registering a new Strategy, call sites
// do not change.
type Strategy interface {
	Name() string
	// KeyFields are the subject columns at this granularity.
	KeyFields() []string
	// ConflictColumns are the unique-index columns the upsert conflicts on
	// for the given entity kind.
	ConflictColumns(kind RecordKind) []string
	// Normalize zeroes out key fields below this level's granularity.
	Normalize(k domain.ForecastKey) domain.ForecastKey
}

var (
	mu       sync.RWMutex
	registry = map[string]Strategy{}
)

// Register adds a strategy to the registry. Registering the same name twice
// panics; levels are wired once at process start.
func Register(s Strategy) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := registry[s.Name()]; dup {
		panic("level: duplicate strategy " + s.Name())
	}
	registry[s.Name()] = s
}

// Get returns the strategy for name.
func Get(name string) (Strategy, error) {
	mu.RLock()
	defer mu.RUnlock()
	s, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown forecast level %q", domain.ErrValidation, name)
	}
	return s, nil
}

// Names lists the registered levels in stable order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Warehouse is the forecast level keyed by (product, company, warehouse).
const Warehouse = "warehouse"

type warehouseStrategy struct{}

func (warehouseStrategy) Name() string { return Warehouse }

func (warehouseStrategy) KeyFields() []string {
	return []string{"product_id", "company_id", "warehouse_id"}
}

func (s warehouseStrategy) ConflictColumns(kind RecordKind) []string {
	base := s.KeyFields()
	switch kind {
	case KindForecastResult:
		// One immutable snapshot per bucket per publish time.
		return append(base, "period_type", "start_date", "pub_time")
	case KindDemandClassification, KindServiceLevel:
		return append(base, "pub_time")
	case KindSummarizeResult:
		// Actuals for a bucket are replaced outright by newer summaries.
		return append(base, "period_type", "start_date")
	}
	return base
}

func (warehouseStrategy) Normalize(k domain.ForecastKey) domain.ForecastKey {
	k.LotStockID = 0
	return k
}

func init() {
	Register(warehouseStrategy{})
}
