package metadata

// Operator identifies a filter comparison.
type Operator uint8

const (
	// OpEqual matches values that compare equal.
	OpEqual Operator = iota
	// OpNotEqual matches values that do not compare equal.
	OpNotEqual
	// OpGreaterThan matches numeric values strictly greater than the operand.
	OpGreaterThan
	// OpGreaterEqual matches numeric values greater than or equal to the operand.
	OpGreaterEqual
	// OpLessThan matches numeric values strictly less than the operand.
	OpLessThan
	// OpLessEqual matches numeric values less than or equal to the operand.
	OpLessEqual
)

// Filter is a single-key predicate over a metadata document.
type Filter struct {
	Key      string
	Operator Operator
	Value    Value
}

// Eq creates an equality filter.
func Eq(key string, value Value) *Filter {
	return &Filter{Key: key, Operator: OpEqual, Value: value}
}

// Ne creates a not-equal filter.
func Ne(key string, value Value) *Filter {
	return &Filter{Key: key, Operator: OpNotEqual, Value: value}
}

// Gt creates a greater-than filter.
func Gt(key string, value Value) *Filter {
	return &Filter{Key: key, Operator: OpGreaterThan, Value: value}
}

// Gte creates a greater-or-equal filter.
func Gte(key string, value Value) *Filter {
	return &Filter{Key: key, Operator: OpGreaterEqual, Value: value}
}

// Lt creates a less-than filter.
func Lt(key string, value Value) *Filter {
	return &Filter{Key: key, Operator: OpLessThan, Value: value}
}

// Lte creates a less-or-equal filter.
func Lte(key string, value Value) *Filter {
	return &Filter{Key: key, Operator: OpLessEqual, Value: value}
}

// Matches checks if the provided metadata matches this filter.
// A missing key never matches.
func (f *Filter) Matches(doc Document) bool {
	value, exists := doc[f.Key]
	if !exists {
		return false
	}

	switch f.Operator {
	case OpEqual:
		return value.Equal(f.Value)
	case OpNotEqual:
		return !value.Equal(f.Value)
	case OpGreaterThan:
		return compareGreater(value, f.Value)
	case OpGreaterEqual:
		return compareGreater(value, f.Value) || value.Equal(f.Value)
	case OpLessThan:
		return compareLess(value, f.Value)
	case OpLessEqual:
		return compareLess(value, f.Value) || value.Equal(f.Value)
	default:
		return false
	}
}

// FilterSet is a conjunction of filters.
type FilterSet struct {
	Filters []*Filter
}

// And creates a filter set that matches when every filter matches.
func And(filters ...*Filter) *FilterSet {
	return &FilterSet{Filters: filters}
}

// Matches checks if the provided metadata matches all filters in the set.
func (fs *FilterSet) Matches(doc Document) bool {
	for _, filter := range fs.Filters {
		if !filter.Matches(doc) {
			return false
		}
	}
	return true
}

func compareGreater(a, b Value) bool {
	if a.Kind == KindTime && b.Kind == KindTime {
		return a.I64 > b.I64
	}
	if !isNumber(a) || !isNumber(b) {
		return false
	}
	return asFloat64(a) > asFloat64(b)
}

func compareLess(a, b Value) bool {
	if a.Kind == KindTime && b.Kind == KindTime {
		return a.I64 < b.I64
	}
	if !isNumber(a) || !isNumber(b) {
		return false
	}
	return asFloat64(a) < asFloat64(b)
}
