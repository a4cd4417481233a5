package matrix

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Batch is a batch of equally sized matrices, one per batch element.
type Batch []*mat.Dense

// NewBatch creates a Batch of n zero matrices with r rows and c columns.
// It panics if either of n, r or c is not positive.
func NewBatch(n, r, c int) Batch {
	if n <= 0 {
		panic("matrix: invalid batch size")
	}

	b := make(Batch, n)
	for i := range b {
		b[i] = mat.NewDense(r, c, nil)
	}

	return b
}

// Dims returns the batch size and the dimensions of the batched matrices.
// It panics if b is empty.
func (b Batch) Dims() (n, r, c int) {
	r, c = b[0].Dims()

	return len(b), r, c
}

// Eye returns the n x n identity matrix.
// It panics if n is not positive.
func Eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1.0)
	}

	return m
}

// OneTransition left-multiplies every matrix in b by the shared matrix t:
// out[i] = t * b[i]. It returns the result as a new Batch.
// It panics if the dimensions of t and b do not match.
func OneTransition(t mat.Matrix, b Batch) Batch {
	out := make(Batch, len(b))
	for i := range b {
		m := &mat.Dense{}
		m.Mul(t, b[i])
		out[i] = m
	}

	return out
}

// BatchOuter computes per-row outer products of v1 and v2:
// out[i] = v1.RowView(i) * v2.RowView(i)^T, a matrix with as many
// rows as v1 has columns and as many columns as v2 has columns.
// It panics if v1 and v2 have different row counts.
func BatchOuter(v1, v2 *mat.Dense) Batch {
	n, d := v1.Dims()
	n2, k := v2.Dims()
	if n != n2 {
		panic("matrix: mismatched batch dimensions")
	}

	out := make(Batch, n)
	for i := 0; i < n; i++ {
		m := mat.NewDense(d, k, nil)
		m.Outer(1.0, v1.RowView(i), v2.RowView(i))
		out[i] = m
	}

	return out
}

// BatchVecMul multiplies every row of v with the matching matrix in b:
// out row i = v.RowView(i)^T * b[i]. The result has one row per batch
// element and as many columns as the batched matrices.
// It panics if the batch sizes or inner dimensions do not match.
func BatchVecMul(v *mat.Dense, b Batch) *mat.Dense {
	n, _ := v.Dims()
	if n != len(b) {
		panic("matrix: mismatched batch dimensions")
	}

	_, k := b[0].Dims()
	out := mat.NewDense(n, k, nil)
	res := &mat.VecDense{}
	for i := 0; i < n; i++ {
		res.MulVec(b[i].T(), v.RowView(i))
		for j := 0; j < k; j++ {
			out.Set(i, j, res.AtVec(j))
		}
	}

	return out
}

// RowSums returns a slice containing m row sums.
// It panics if m is nil.
func RowSums(m *mat.Dense) []float64 {
	rows, _ := m.Dims()
	sum := make([]float64, rows)

	for i := 0; i < rows; i++ {
		sum[i] = floats.Sum(m.RawRowView(i))
	}

	return sum
}

// ColSums returns a slice containing m column sums.
// It panics if m is nil.
func ColSums(m *mat.Dense) []float64 {
	_, cols := m.Dims()
	sum := make([]float64, cols)

	for i := 0; i < cols; i++ {
		sum[i] = mat.Sum(m.ColView(i))
	}

	return sum
}
