// Package vecmath 提供召回与排序共用的向量计算函数。
package vecmath

import "math"

// Dot 计算内积；长度不一致或为空时返回 0。
func Dot(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Norm 计算 L2 范数。
func Norm(a []float64) float64 {
	var sum float64
	for _, v := range a {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// Cosine 计算余弦相似度；任一向量为零向量或长度不一致时返回 0。
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CosineDistance = 1 - Cosine。
func CosineDistance(a, b []float64) float64 {
	return 1 - Cosine(a, b)
}

// Normalize 返回单位化后的副本；零向量原样复制。
func Normalize(a []float64) []float64 {
	out := make([]float64, len(a))
	n := Norm(a)
	if n == 0 {
		copy(out, a)
		return out
	}
	for i, v := range a {
		out[i] = v / n
	}
	return out
}

// Sigmoid 把 logit 映射到 (0,1)。
// 对大幅值的输入做了数值稳定处理，并把结果钳制在开区间内。
func Sigmoid(x float64) float64 {
	var p float64
	if x >= 0 {
		p = 1 / (1 + math.Exp(-x))
	} else {
		e := math.Exp(x)
		p = e / (1 + e)
	}
	const eps = 1e-12
	if p <= 0 {
		return eps
	}
	if p >= 1 {
		return 1 - eps
	}
	return p
}
