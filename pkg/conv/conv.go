// Package conv 把外部载荷（模型服务的 JSON、特征存储返回值）里的 any 值转换为数值。
package conv

import (
	"strconv"

	"github.com/goccy/go-json"
)

// ToFloat64 将 any 转为 float64。
// 支持 float64、float32、int、int64、int32、json.Number 与数字字符串；bool 视为 1.0/0.0。
func ToFloat64(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	case bool:
		if val {
			return 1.0, true
		}
		return 0.0, true
	default:
		return 0, false
	}
}

// ToFloat64Slice 将 []float64、[]float32、[]any、[]int64 转为 []float64；任一元素无法转换时返回 false。
func ToFloat64Slice(v any) ([]float64, bool) {
	switch val := v.(type) {
	case []float64:
		return val, true
	case []float32:
		out := make([]float64, len(val))
		for i, x := range val {
			out[i] = float64(x)
		}
		return out, true
	case []int64:
		out := make([]float64, len(val))
		for i, x := range val {
			out[i] = float64(x)
		}
		return out, true
	case []any:
		out := make([]float64, len(val))
		for i, x := range val {
			f, ok := ToFloat64(x)
			if !ok {
				return nil, false
			}
			out[i] = f
		}
		return out, true
	default:
		return nil, false
	}
}

// Scalar 取出单个数值：标量直接转换，长度为 1 的数组取唯一元素。
// 模型服务对单输出模型既可能返回 0.3 也可能返回 [0.3]。
func Scalar(v any) (float64, bool) {
	if f, ok := ToFloat64(v); ok {
		return f, true
	}
	s, ok := ToFloat64Slice(v)
	if !ok || len(s) != 1 {
		return 0, false
	}
	return s[0], true
}
