package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeLabel(t *testing.T) {
	tests := []struct {
		name     string
		existing Label
		incoming Label
		want     Label
	}{
		{"empty existing", Label{}, Label{Value: "a", Source: SourceRank}, Label{Value: "a", Source: SourceRank}},
		{"empty incoming", Label{Value: "a", Source: SourceRank}, Label{}, Label{Value: "a", Source: SourceRank}},
		{"append", Label{Value: "lr", Source: SourceRank}, Label{Value: "hybrid_fallback", Source: SourceFallback},
			Label{Value: "lr|hybrid_fallback", Source: "rank,fallback"}},
		{"same source once", Label{Value: "a", Source: SourceRank}, Label{Value: "b", Source: SourceRank},
			Label{Value: "a|b", Source: "rank"}},
		{"existing without source", Label{Value: "a"}, Label{Value: "b", Source: SourceSelect},
			Label{Value: "a|b", Source: "select"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeLabel(tt.existing, tt.incoming))
		})
	}
}
