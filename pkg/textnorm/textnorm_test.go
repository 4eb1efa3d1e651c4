package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Archeology", "archeology"},
		{"  Ciência de Dados ", "ciencia_de_dados"},
		{"C++ / Go", "c_go"},
		{"Engenharia—Civil", "engenharia_civil"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Token(tt.in))
		})
	}
}

func TestExpand(t *testing.T) {
	assert.Equal(t, []string{"ciencia_de_dados", "ciencia", "de", "dados"}, Expand("Ciência de Dados"))
	assert.Equal(t, []string{"python"}, Expand("PYTHON"))
	assert.Nil(t, Expand(" "))
}

func TestSetAndIntersect(t *testing.T) {
	a := Set("Data Science", "Python")
	b := Set("python", "science")
	assert.Equal(t, []string{"data", "data_science", "python", "science"}, Sorted(a))
	assert.Equal(t, 2, Intersect(a, b))
	assert.Equal(t, 0, Intersect(a, nil))
}

func TestTokenSet(t *testing.T) {
	got := TokenSet("Data Science", "  python ", "!!!", "data science")
	assert.Equal(t, []string{"data_science", "python"}, Sorted(got))
	assert.Equal(t, 0, Intersect(TokenSet("Data Science"), Set("Data Analysis")))
	assert.Equal(t, 1, Intersect(TokenSet("Data Science"), Set("Data Science")))
}
