package qdrant

import (
	"fmt"
	"math"
	"time"

	qdrantclient "github.com/qdrant/go-client/qdrant"
)

// toPayload converts a record payload into Qdrant values.
func toPayload(p map[string]any) (map[string]*qdrantclient.Value, error) {
	out := make(map[string]*qdrantclient.Value, len(p))
	for k, v := range p {
		val, err := toValue(v)
		if err != nil {
			return nil, fmt.Errorf("payload key %q: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}

func toValue(v any) (*qdrantclient.Value, error) {
	switch t := v.(type) {
	case nil:
		return &qdrantclient.Value{Kind: &qdrantclient.Value_NullValue{}}, nil
	case string:
		return &qdrantclient.Value{Kind: &qdrantclient.Value_StringValue{StringValue: t}}, nil
	case bool:
		return &qdrantclient.Value{Kind: &qdrantclient.Value_BoolValue{BoolValue: t}}, nil
	case int:
		return intValue(int64(t)), nil
	case int32:
		return intValue(int64(t)), nil
	case int64:
		return intValue(t), nil
	case uint32:
		return intValue(int64(t)), nil
	case float32:
		return doubleValue(float64(t)), nil
	case float64:
		// JSON numbers arrive as float64; keep whole numbers integral
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return intValue(int64(t)), nil
		}
		return doubleValue(t), nil
	case time.Time:
		return &qdrantclient.Value{Kind: &qdrantclient.Value_StringValue{StringValue: t.UTC().Format(time.RFC3339)}}, nil
	case []string:
		values := make([]*qdrantclient.Value, len(t))
		for i, s := range t {
			values[i] = &qdrantclient.Value{Kind: &qdrantclient.Value_StringValue{StringValue: s}}
		}
		return listValue(values), nil
	case []any:
		values := make([]*qdrantclient.Value, len(t))
		for i, item := range t {
			val, err := toValue(item)
			if err != nil {
				return nil, err
			}
			values[i] = val
		}
		return listValue(values), nil
	case map[string]any:
		fields, err := toPayload(t)
		if err != nil {
			return nil, err
		}
		return &qdrantclient.Value{Kind: &qdrantclient.Value_StructValue{
			StructValue: &qdrantclient.Struct{Fields: fields},
		}}, nil
	default:
		return nil, fmt.Errorf("unsupported payload type %T", v)
	}
}

func intValue(n int64) *qdrantclient.Value {
	return &qdrantclient.Value{Kind: &qdrantclient.Value_IntegerValue{IntegerValue: n}}
}

func doubleValue(f float64) *qdrantclient.Value {
	return &qdrantclient.Value{Kind: &qdrantclient.Value_DoubleValue{DoubleValue: f}}
}

func listValue(values []*qdrantclient.Value) *qdrantclient.Value {
	return &qdrantclient.Value{Kind: &qdrantclient.Value_ListValue{
		ListValue: &qdrantclient.ListValue{Values: values},
	}}
}

// fromPayload converts Qdrant values back to plain Go values.
func fromPayload(p map[string]*qdrantclient.Value) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = fromValue(v)
	}
	return out
}

func fromValue(v *qdrantclient.Value) any {
	switch k := v.GetKind().(type) {
	case *qdrantclient.Value_StringValue:
		return k.StringValue
	case *qdrantclient.Value_IntegerValue:
		return k.IntegerValue
	case *qdrantclient.Value_DoubleValue:
		return k.DoubleValue
	case *qdrantclient.Value_BoolValue:
		return k.BoolValue
	case *qdrantclient.Value_ListValue:
		values := k.ListValue.GetValues()
		out := make([]any, len(values))
		for i, item := range values {
			out[i] = fromValue(item)
		}
		return out
	case *qdrantclient.Value_StructValue:
		return fromPayload(k.StructValue.GetFields())
	default:
		return nil
	}
}
