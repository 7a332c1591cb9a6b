package doctemplar

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"time"
)

// Value — результат разрешения пути свойства: NullValue, BoolValue, TextValue, DateValue или ObjectValue.
type Value interface {
	isValue()
}

type (
	NullValue   struct{}
	BoolValue   bool
	TextValue   string
	DateValue   struct{ Time time.Time }
	ObjectValue struct{ Ref any }
)

func (NullValue) isValue()   {}
func (BoolValue) isValue()   {}
func (TextValue) isValue()   {}
func (DateValue) isValue()   {}
func (ObjectValue) isValue() {}

// ValueOf переводит значение из графа объектов в Value.
func ValueOf(v any) Value {
	switch vv := v.(type) {
	case nil:
		return NullValue{}
	case Value:
		return vv
	case bool:
		return BoolValue(vv)
	case *bool:
		if vv == nil {
			return NullValue{}
		}
		return BoolValue(*vv)
	case string:
		return TextValue(vv)
	case *string:
		if vv == nil {
			return NullValue{}
		}
		return TextValue(*vv)
	case time.Time:
		if vv.IsZero() {
			return NullValue{}
		}
		return DateValue{Time: vv}
	case *time.Time:
		if vv == nil || vv.IsZero() {
			return NullValue{}
		}
		return DateValue{Time: *vv}
	case int:
		return TextValue(strconv.Itoa(vv))
	case int32:
		return TextValue(strconv.FormatInt(int64(vv), 10))
	case int64:
		return TextValue(strconv.FormatInt(vv, 10))
	case uint:
		return TextValue(strconv.FormatUint(uint64(vv), 10))
	case uint32:
		return TextValue(strconv.FormatUint(uint64(vv), 10))
	case uint64:
		return TextValue(strconv.FormatUint(vv, 10))
	case float32:
		return TextValue(strconv.FormatFloat(float64(vv), 'f', -1, 32))
	case float64:
		return TextValue(strconv.FormatFloat(vv, 'f', -1, 64))
	case json.Number:
		return TextValue(vv.String())
	}
	if isNilRef(v) {
		return NullValue{}
	}
	return ObjectValue{Ref: v}
}

// isNull: значение отображается как пустое (nil, nil-указатель, нулевая дата).
func isNull(v any) bool {
	_, null := ValueOf(v).(NullValue)
	return null
}

func isNilRef(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func:
		return rv.IsNil()
	}
	return false
}

// Formatter переводит Value в отображаемую строку.
type Formatter struct {
	Yes        string
	No         string
	DateLayout string
}

func NewFormatter(cfg Config) Formatter {
	return Formatter{Yes: cfg.YesLabel, No: cfg.NoLabel, DateLayout: cfg.DateLayout}
}

func (f Formatter) Format(v Value) string {
	switch vv := v.(type) {
	case nil, NullValue:
		return ""
	case BoolValue:
		if vv {
			return f.Yes
		}
		return f.No
	case TextValue:
		return string(vv)
	case DateValue:
		return vv.Time.Format(f.DateLayout)
	case ObjectValue:
		if s, ok := vv.Ref.(fmt.Stringer); ok {
			return s.String()
		}
		return ""
	}
	return ""
}
