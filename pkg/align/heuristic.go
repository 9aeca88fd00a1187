package align

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/logflow/pmcore/pkg/petri"
)

const (
	lpTolerance  = 1e-10
	pivotEpsilon = 1e-9
)

// stateEquation is the marking-equation relaxation of a synchronous
// product: minimize cost·x subject to C·x = final - m, x >= 0.
//
// Simplex needs a matrix of full row rank without zero columns, so the
// incidence matrix is row-reduced once. Rows that reduce to zero become
// consistency checks on the right-hand side; transitions with a zero column
// never change the marking and are left out.
type stateEquation struct {
	cols    []int      // product transition per LP column
	cost    []float64  // per LP column
	a       *mat.Dense // reduced constraint matrix
	reduce  [][]float64
	checks  [][]float64
	final   []float64
	nTrans  int
	nPlaces int
}

func newStateEquation(sp *syncProduct) *stateEquation {
	inc := sp.Net.Incidence()
	nPlaces, nTrans := sp.Net.NumPlaces(), sp.Net.NumTransitions()
	se := &stateEquation{nTrans: nTrans, nPlaces: nPlaces, final: make([]float64, nPlaces)}
	for p, c := range sp.Final {
		se.final[p] = float64(c)
	}

	for t := 0; t < nTrans; t++ {
		for p := 0; p < nPlaces; p++ {
			if inc[p][t] != 0 {
				se.cols = append(se.cols, t)
				se.cost = append(se.cost, sp.steps[t].cost)
				break
			}
		}
	}

	// Gaussian elimination on [C | I]. The identity part records which
	// combination of original rows produced each reduced row.
	width := len(se.cols)
	rows := make([][]float64, nPlaces)
	for p := range rows {
		r := make([]float64, width+nPlaces)
		for j, t := range se.cols {
			r[j] = float64(inc[p][t])
		}
		r[width+p] = 1
		rows[p] = r
	}
	rank := 0
	for col := 0; col < width && rank < nPlaces; col++ {
		pivot, best := -1, pivotEpsilon
		for r := rank; r < nPlaces; r++ {
			if v := math.Abs(rows[r][col]); v > best {
				pivot, best = r, v
			}
		}
		if pivot < 0 {
			continue
		}
		rows[rank], rows[pivot] = rows[pivot], rows[rank]
		for r := 0; r < nPlaces; r++ {
			if r == rank || rows[r][col] == 0 {
				continue
			}
			f := rows[r][col] / rows[rank][col]
			for j := col; j < len(rows[r]); j++ {
				rows[r][j] -= f * rows[rank][j]
			}
		}
		rank++
	}

	if rank > 0 {
		se.a = mat.NewDense(rank, width, nil)
		for r := 0; r < rank; r++ {
			se.a.SetRow(r, rows[r][:width])
			se.reduce = append(se.reduce, rows[r][width:])
		}
	}
	for r := rank; r < nPlaces; r++ {
		se.checks = append(se.checks, rows[r][width:])
	}
	return se
}

// estimate solves the relaxation for marking m. It returns +Inf when the
// marking equation has no solution. The solution vector is indexed by
// product transition and is nil when the relaxation could not be solved, in
// which case the estimate falls back to zero.
func (se *stateEquation) estimate(m petri.Marking) (float64, []float64) {
	rhs := make([]float64, se.nPlaces)
	copy(rhs, se.final)
	for p, c := range m {
		rhs[p] -= float64(c)
	}
	for _, y := range se.checks {
		if math.Abs(dot(y, rhs)) > pivotEpsilon {
			return math.Inf(1), nil
		}
	}
	if se.a == nil {
		return 0, make([]float64, se.nTrans)
	}
	b := make([]float64, len(se.reduce))
	for i, y := range se.reduce {
		b[i] = dot(y, rhs)
	}

	h, x, err := lp.Simplex(se.cost, se.a, b, lpTolerance, nil)
	if err != nil {
		// an exactly constrained system reports negative solve noise as
		// infeasible, so only trust infeasibility from the simplex proper
		if err == lp.ErrInfeasible && len(se.reduce) < len(se.cols) {
			return math.Inf(1), nil
		}
		return 0, nil
	}
	full := make([]float64, se.nTrans)
	for j, t := range se.cols {
		full[t] = x[j]
	}
	return math.Max(0, h-pivotEpsilon), full
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
