package graph

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
)

// State is the shared value flowing through a graph. Nodes receive a copy and
// return partial updates; the scheduler owns committed states.
type State map[string]any

// Clone returns a shallow copy of the state.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	return maps.Clone(s)
}

// Reducer defines how a field value should be updated.
// It takes the current value and the incoming value, and returns the merged value.
type Reducer func(current, incoming any) (any, error)

// Field declares one state field.
type Field struct {
	Name string

	// Reducer merges updates into the field. Nil means overwrite.
	Reducer Reducer

	// Default produces the initial value. Nil means the field starts absent.
	Default func() any
}

// Schema is an ordered set of field declarations.
//
// A nil *Schema accepts every field and overwrites on update.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema creates an empty schema.
func NewSchema() *Schema {
	return &Schema{index: make(map[string]int)}
}

// AddField declares a field. Declaring a name again replaces its reducer and
// default but keeps its original position.
func (s *Schema) AddField(name string, reducer Reducer, defaultFn func() any) *Schema {
	f := Field{Name: name, Reducer: reducer, Default: defaultFn}
	if i, ok := s.index[name]; ok {
		s.fields[i] = f
		return s
	}
	s.index[name] = len(s.fields)
	s.fields = append(s.fields, f)
	return s
}

// Fields returns the declarations in order.
func (s *Schema) Fields() []Field {
	if s == nil {
		return nil
	}
	return slices.Clone(s.fields)
}

// Has reports whether a field is declared.
func (s *Schema) Has(name string) bool {
	if s == nil {
		return true
	}
	_, ok := s.index[name]
	return ok
}

// Reduce merges an incoming value into a field.
func (s *Schema) Reduce(field string, current, incoming any) (any, error) {
	if s == nil {
		return incoming, nil
	}
	i, ok := s.index[field]
	if !ok {
		return nil, &SchemaError{Field: field}
	}
	reducer := s.fields[i].Reducer
	if reducer == nil {
		return incoming, nil
	}
	merged, err := reducer(current, incoming)
	if err != nil {
		return nil, fmt.Errorf("failed to reduce field %s: %w", field, err)
	}
	return merged, nil
}

// Init returns the initial state built from field defaults.
func (s *Schema) Init() State {
	state := State{}
	if s == nil {
		return state
	}
	for _, f := range s.fields {
		if f.Default != nil {
			state[f.Name] = f.Default()
		}
	}
	return state
}

// Validate checks that every key of the update is declared. Keys are checked
// in sorted order so the reported field is stable.
func (s *Schema) Validate(update State) error {
	if s == nil {
		return nil
	}
	for _, k := range slices.Sorted(maps.Keys(update)) {
		if _, ok := s.index[k]; !ok {
			return &SchemaError{Field: k}
		}
	}
	return nil
}

// Update applies updates to current in order and returns a new state.
// current is never modified. Fields no update touches keep their value.
func (s *Schema) Update(current State, updates ...State) (State, error) {
	result := current.Clone()
	for _, update := range updates {
		if err := s.Validate(update); err != nil {
			return nil, err
		}
		for _, k := range slices.Sorted(maps.Keys(update)) {
			merged, err := s.Reduce(k, result[k], update[k])
			if err != nil {
				return nil, err
			}
			result[k] = merged
		}
	}
	return result, nil
}

// Common Reducers

// OverwriteReducer replaces the old value with the new one.
func OverwriteReducer(_, incoming any) (any, error) {
	return incoming, nil
}

// AppendReducer appends the incoming value to the current slice.
// It accepts a slice or a single element. The result is always a newly
// allocated slice, so states never share a backing array. When element
// types do not match the result is []any.
func AppendReducer(current, incoming any) (any, error) {
	if incoming == nil {
		if current == nil {
			return nil, nil
		}
		currVal := reflect.ValueOf(current)
		if currVal.Kind() != reflect.Slice {
			return nil, fmt.Errorf("current value is not a slice: %T", current)
		}
		return concat(currVal, reflect.Value{}), nil
	}

	newVal := reflect.ValueOf(incoming)
	if current == nil {
		if newVal.Kind() == reflect.Slice {
			return concat(newVal, reflect.Value{}), nil
		}
		slice := reflect.MakeSlice(reflect.SliceOf(newVal.Type()), 0, 1)
		return reflect.Append(slice, newVal).Interface(), nil
	}

	currVal := reflect.ValueOf(current)
	if currVal.Kind() != reflect.Slice {
		return nil, fmt.Errorf("current value is not a slice: %T", current)
	}

	if newVal.Kind() != reflect.Slice {
		// Wrap the single element so both sides are slices.
		wrapped := reflect.MakeSlice(reflect.SliceOf(newVal.Type()), 1, 1)
		wrapped.Index(0).Set(newVal)
		newVal = wrapped
	}
	return concat(currVal, newVal), nil
}

// concat copies a and b into a fresh slice. b may be the zero Value.
func concat(a, b reflect.Value) any {
	n := a.Len()
	if b.IsValid() {
		n += b.Len()
	}

	elem := a.Type().Elem()
	if b.IsValid() && !b.Type().Elem().AssignableTo(elem) {
		out := make([]any, 0, n)
		for i := 0; i < a.Len(); i++ {
			out = append(out, a.Index(i).Interface())
		}
		for i := 0; i < b.Len(); i++ {
			out = append(out, b.Index(i).Interface())
		}
		return out
	}

	out := reflect.MakeSlice(a.Type(), n, n)
	reflect.Copy(out, a)
	if b.IsValid() {
		for i := 0; i < b.Len(); i++ {
			out.Index(a.Len() + i).Set(b.Index(i))
		}
	}
	return out.Interface()
}
