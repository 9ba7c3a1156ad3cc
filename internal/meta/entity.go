package meta

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"gorm.io/datatypes"
)

// Entity is implemented by every persistent model
type Entity interface {
	PrimaryKey() uint
	String() string
}

// Computed is a derived attribute shown in lists and read-only form fields
type Computed struct {
	ShortDescription string
	Boolean          bool
	Func             func(Entity) any
}

// Choice is one option of a relation select or filter
type Choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Value reads a column of e, normalised: nil for NULL pointers, time.Time for dates,
// plain values otherwise.
func (f *Field) Value(e any) any {
	rv := f.Schema.ReflectValueOf(context.Background(), indirect(e))
	return normalize(rv)
}

// SetValue writes a normalised value (nil, string, int64/int/uint, bool, time.Time) into the column of e
func (f *Field) SetValue(e any, v any) error {
	rv := f.Schema.ReflectValueOf(context.Background(), indirect(e))
	if !rv.CanSet() {
		return fmt.Errorf("field %s is not settable", f.Name)
	}
	return assign(rv, v)
}

// Value reads the related object of e, nil when absent or not loaded
func (r *Relation) Value(e any) any {
	rv := r.Schema.Field.ReflectValueOf(context.Background(), indirect(e))
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
	case reflect.Slice:
		if rv.Len() == 0 {
			return nil
		}
	}
	return rv.Interface()
}

// Clear drops a loaded association so a rewritten foreign key is not contradicted by stale data
func (r *Relation) Clear(e any) {
	rv := r.Schema.Field.ReflectValueOf(context.Background(), indirect(e))
	if rv.CanSet() {
		rv.Set(reflect.Zero(rv.Type()))
	}
}

func indirect(e any) reflect.Value {
	return reflect.Indirect(reflect.ValueOf(e))
}

func normalize(rv reflect.Value) any {
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	switch v := rv.Interface().(type) {
	case datatypes.Date:
		return time.Time(v)
	case time.Time:
		return v
	}

	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	}
	return rv.Interface()
}

func assign(dst reflect.Value, v any) error {
	if v == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}

	target := dst
	if dst.Kind() == reflect.Ptr {
		target = reflect.New(dst.Type().Elem()).Elem()
	}

	if err := assignValue(target, v); err != nil {
		return err
	}

	if dst.Kind() == reflect.Ptr {
		ptr := reflect.New(dst.Type().Elem())
		ptr.Elem().Set(target)
		dst.Set(ptr)
	}
	return nil
}

func assignValue(target reflect.Value, v any) error {
	if t, ok := v.(time.Time); ok {
		switch target.Interface().(type) {
		case datatypes.Date:
			target.Set(reflect.ValueOf(datatypes.Date(t)))
			return nil
		case time.Time:
			target.Set(reflect.ValueOf(t))
			return nil
		}
		return fmt.Errorf("cannot assign date to %s", target.Type())
	}

	src := reflect.ValueOf(v)
	switch target.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch src.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			target.SetInt(src.Int())
			return nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			target.SetInt(int64(src.Uint()))
			return nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		switch src.Kind() {
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			target.SetUint(src.Uint())
			return nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if src.Int() < 0 {
				return fmt.Errorf("negative value for %s", target.Type())
			}
			target.SetUint(uint64(src.Int()))
			return nil
		}
	case reflect.String:
		if src.Kind() == reflect.String {
			target.SetString(src.String())
			return nil
		}
	case reflect.Bool:
		if src.Kind() == reflect.Bool {
			target.SetBool(src.Bool())
			return nil
		}
	}
	return fmt.Errorf("cannot assign %T to %s", v, target.Type())
}
