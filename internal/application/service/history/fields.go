package history

import (
	"fmt"
	"sort"
	"sync"

	domain "lookback/internal/domain/entity/history"
)

// Built-in field names.
const (
	FieldOpen   = "open_price"
	FieldHigh   = "high"
	FieldLow    = "low"
	FieldClose  = "close_price"
	FieldPrice  = "price" // alias of close_price
	FieldVolume = "volume"
)

// FieldFunc extracts one field value from a bar.
type FieldFunc func(domain.Bar) float64

// FieldSet resolves field names to extractors. The OHLCV built-ins are always
// present; data-fetch integrations may register additional fields by name.
type FieldSet struct {
	mu     sync.RWMutex
	fields map[string]FieldFunc
}

func NewFieldSet() *FieldSet {
	return &FieldSet{
		fields: map[string]FieldFunc{
			FieldOpen:   func(b domain.Bar) float64 { return b.Open },
			FieldHigh:   func(b domain.Bar) float64 { return b.High },
			FieldLow:    func(b domain.Bar) float64 { return b.Low },
			FieldClose:  func(b domain.Bar) float64 { return b.Close },
			FieldPrice:  func(b domain.Bar) float64 { return b.Close },
			FieldVolume: func(b domain.Bar) float64 { return b.Volume },
		},
	}
}

// Register adds an external field. Built-ins and already registered names
// cannot be replaced.
func (f *FieldSet) Register(name string, fn FieldFunc) error {
	if name == "" {
		return fmt.Errorf("field name is empty")
	}
	if fn == nil {
		return fmt.Errorf("field func for %q is nil", name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.fields[name]; ok {
		return fmt.Errorf("field %q is already registered", name)
	}
	f.fields[name] = fn
	return nil
}

// Lookup returns the extractor for a field name.
func (f *FieldSet) Lookup(name string) (FieldFunc, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fn, ok := f.fields[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return fn, nil
}

// Names returns every registered field name in lexical order.
func (f *FieldSet) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.fields))
	for name := range f.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
