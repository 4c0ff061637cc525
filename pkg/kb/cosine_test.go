package kb

import (
	"math"
	"testing"
)

func TestCosine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{
			name: "identical vectors",
			a:    []float32{1, 2, 3},
			b:    []float32{1, 2, 3},
			want: 1,
		},
		{
			name: "opposite vectors",
			a:    []float32{1, 0},
			b:    []float32{-1, 0},
			want: -1,
		},
		{
			name: "orthogonal vectors",
			a:    []float32{1, 0},
			b:    []float32{0, 1},
			want: 0,
		},
		{
			name: "zero vector",
			a:    []float32{0, 0, 0},
			b:    []float32{1, 2, 3},
			want: 0,
		},
		{
			name: "both zero",
			a:    []float32{0, 0},
			b:    []float32{0, 0},
			want: 0,
		},
		{
			name: "magnitude independent",
			a:    []float32{1, 1},
			b:    []float32{10, 10},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Cosine(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCosineSymmetry(t *testing.T) {
	t.Parallel()

	a := []float32{0.3, -0.7, 0.2, 0.9}
	b := []float32{-0.1, 0.4, 0.8, 0.05}

	if got, rev := Cosine(a, b), Cosine(b, a); got != rev {
		t.Errorf("Cosine(a, b) = %v but Cosine(b, a) = %v", got, rev)
	}
}

func TestCosineBounded(t *testing.T) {
	t.Parallel()

	vectors := [][]float32{
		{1, 2, 3, 4},
		{-4, 3, -2, 1},
		{0.001, 0.002, 0.003, 0.004},
		{100, -200, 300, -400},
	}
	for i, a := range vectors {
		for j, b := range vectors {
			got := Cosine(a, b)
			if got < -1-1e-9 || got > 1+1e-9 {
				t.Errorf("Cosine(vectors[%d], vectors[%d]) = %v, outside [-1, 1]", i, j, got)
			}
		}
	}
}

func TestCosinePanicsOnDimensionMismatch(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("Cosine did not panic for mismatched dimensions")
		}
	}()
	Cosine([]float32{1, 2}, []float32{1, 2, 3})
}
