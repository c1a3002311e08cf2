package dynamo

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Encode converts an arbitrary value into its typed attribute encoding.
// The conversion is total: strings, numbers, booleans, nil, slices, and
// string-keyed maps all have a defined encoding, and any other shape
// degrades to its string representation instead of erroring.
func Encode(v any) types.AttributeValue {
	switch val := v.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}
	case string:
		return &types.AttributeValueMemberS{Value: val}
	case bool:
		return &types.AttributeValueMemberBOOL{Value: val}
	case int:
		return &types.AttributeValueMemberN{Value: strconv.Itoa(val)}
	case int32:
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(int64(val), 10)}
	case int64:
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(val, 10)}
	case float32:
		return &types.AttributeValueMemberN{Value: strconv.FormatFloat(float64(val), 'f', -1, 32)}
	case float64:
		return &types.AttributeValueMemberN{Value: strconv.FormatFloat(val, 'f', -1, 64)}
	case time.Time:
		return &types.AttributeValueMemberS{Value: val.UTC().Format(time.RFC3339)}
	case []byte:
		return &types.AttributeValueMemberB{Value: val}
	case []any:
		list := make([]types.AttributeValue, len(val))
		for i, item := range val {
			list[i] = Encode(item)
		}
		return &types.AttributeValueMemberL{Value: list}
	case []string:
		list := make([]types.AttributeValue, len(val))
		for i, item := range val {
			list[i] = Encode(item)
		}
		return &types.AttributeValueMemberL{Value: list}
	case map[string]any:
		return &types.AttributeValueMemberM{Value: EncodeMap(val)}
	}
	return encodeReflect(v)
}

// EncodeMap converts a field map into a typed attribute map.
func EncodeMap(fields map[string]any) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(fields))
	for name, value := range fields {
		out[name] = Encode(value)
	}
	return out
}

func encodeReflect(v any) types.AttributeValue {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		list := make([]types.AttributeValue, rv.Len())
		for i := range rv.Len() {
			list[i] = Encode(rv.Index(i).Interface())
		}
		return &types.AttributeValueMemberL{Value: list}
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			m := make(map[string]types.AttributeValue, rv.Len())
			for _, key := range rv.MapKeys() {
				m[key.String()] = Encode(rv.MapIndex(key).Interface())
			}
			return &types.AttributeValueMemberM{Value: m}
		}
	case reflect.Ptr:
		if rv.IsNil() {
			return &types.AttributeValueMemberNULL{Value: true}
		}
		return Encode(rv.Elem().Interface())
	}
	// Unrecognized shape: fall back to its string form.
	return &types.AttributeValueMemberS{Value: fmt.Sprint(v)}
}

// Decode converts a typed attribute back into a plain Go value. Numbers
// come back as float64; unknown member types come back as strings.
func Decode(av types.AttributeValue) any {
	switch val := av.(type) {
	case *types.AttributeValueMemberS:
		return val.Value
	case *types.AttributeValueMemberN:
		n, err := strconv.ParseFloat(val.Value, 64)
		if err != nil {
			return val.Value
		}
		return n
	case *types.AttributeValueMemberBOOL:
		return val.Value
	case *types.AttributeValueMemberNULL:
		return nil
	case *types.AttributeValueMemberB:
		return val.Value
	case *types.AttributeValueMemberL:
		out := make([]any, len(val.Value))
		for i, item := range val.Value {
			out[i] = Decode(item)
		}
		return out
	case *types.AttributeValueMemberM:
		return DecodeMap(val.Value)
	}
	return fmt.Sprint(av)
}

// DecodeMap converts a typed attribute map into a plain field map.
func DecodeMap(attrs map[string]types.AttributeValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for name, av := range attrs {
		out[name] = Decode(av)
	}
	return out
}
