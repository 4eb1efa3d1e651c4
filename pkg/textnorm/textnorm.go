// Package textnorm 实现标签 token 的归一化规则。
//
// 规则：
//   - 去除重音（NFD 分解后丢弃 Mn 类字符）
//   - 转小写，仅保留 ASCII 字母与数字
//   - 多词短语用下划线连接，同时展开为各个组成词
//
// 例如 "Ciência de Dados" → {"ciencia_de_dados", "ciencia", "de", "dados"}。
package textnorm

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripAccents 每次调用新建 transformer，transform.Chain 不是并发安全的。
func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// words 把字符串切分为 ASCII 小写单词。
func words(s string) []string {
	s = strings.ToLower(stripAccents(s))
	return strings.FieldsFunc(s, func(r rune) bool {
		return r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r))
	})
}

// Token 把一个短语归一化为单个 token（多词用下划线连接）；无有效字符时返回 ""。
func Token(s string) string {
	return strings.Join(words(s), "_")
}

// Expand 返回短语的 token 以及组成词（去重）。
func Expand(s string) []string {
	ws := words(s)
	if len(ws) == 0 {
		return nil
	}
	if len(ws) == 1 {
		return ws
	}
	out := make([]string, 0, len(ws)+1)
	out = append(out, strings.Join(ws, "_"))
	seen := map[string]struct{}{out[0]: {}}
	for _, w := range ws {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// Set 对一组短语做 Expand 并合并为集合。
func Set(phrases ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(phrases)*2)
	for _, p := range phrases {
		for _, tok := range Expand(p) {
			out[tok] = struct{}{}
		}
	}
	return out
}

// TokenSet 对每个短语做 Token，得到一对一的 token 集合；空 token 被丢弃。
// 用于查询侧（允许的标签），候选侧使用 Set 展开组成词。
func TokenSet(phrases ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(phrases))
	for _, p := range phrases {
		if tok := Token(p); tok != "" {
			out[tok] = struct{}{}
		}
	}
	return out
}

// Sorted 返回集合的有序切片，便于日志与测试断言。
func Sorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Intersect 计算两个已归一化集合的交集大小。
func Intersect(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
