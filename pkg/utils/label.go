package utils

import "strings"

// Label 记录候选在某一阶段留下的分数来源，随候选透传到最终结果。
type Label struct {
	Value  string `json:"value"`
	Source string `json:"source"`
}

// 各阶段写入 Label 时使用的 Source。
const (
	SourceRetrieval = "retrieval"
	SourceRank      = "rank"
	SourceSelect    = "select"
	SourceFallback  = "fallback"
)

// MergeLabel 合并同名 Label。Value 以 '|' 追加；Source 以 ',' 追加，已出现过的阶段不重复记录。
func MergeLabel(existing, incoming Label) Label {
	switch {
	case existing.Value == "":
		return incoming
	case incoming.Value == "":
		return existing
	}
	return Label{
		Value:  existing.Value + "|" + incoming.Value,
		Source: appendSource(existing.Source, incoming.Source),
	}
}

func appendSource(have, add string) string {
	if have == "" {
		return add
	}
	for _, s := range strings.Split(add, ",") {
		if s == "" || containsSource(have, s) {
			continue
		}
		have += "," + s
	}
	return have
}

func containsSource(list, s string) bool {
	for _, x := range strings.Split(list, ",") {
		if x == s {
			return true
		}
	}
	return false
}
