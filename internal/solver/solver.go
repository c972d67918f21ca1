// Package solver finds legal moves on a tile board. Two cells match if
// they hold the same positive tile id and an axis-aligned path with at
// most two turns joins them, passing only through empty cells. Paths
// may leave the grid: the search runs on a board padded with a one-cell
// empty border, which is how edge tiles connect around the outside.
package solver

import "github.com/linkclear/linkclear/internal/board"

// dirs are the four axis-aligned step directions. The index is the
// direction id carried through the search.
var dirs = [4][2]int{
	{-1, 0}, // up
	{1, 0},  // down
	{0, -1}, // left
	{0, 1},  // right
}

// turnBudget is the maximum number of direction changes in a legal path.
const turnBudget = 2

type state struct {
	r, c  int
	dir   int // index into dirs, -1 before the first step
	turns int
}

// CanConnect reports whether the tiles at a and b can be removed as a
// pair. It never mutates the board.
func CanConnect(b *board.Board, a, c board.Cell) bool {
	if a == c {
		return false
	}
	if !b.InBounds(a.Row, a.Col) || !b.InBounds(c.Row, c.Col) {
		return false
	}
	va, vc := b.At(a.Row, a.Col), b.At(c.Row, c.Col)
	if va <= 0 || vc <= 0 || va != vc {
		return false
	}
	return searchPadded(b, a.Row+1, a.Col+1, c.Row+1, c.Col+1)
}

// searchPadded runs the turn-bounded BFS in padded coordinates, where
// (0,0) is the top-left corner of the border ring and real cell (r,c)
// sits at (r+1,c+1).
func searchPadded(b *board.Board, sr, sc, tr, tc int) bool {
	pr, pc := b.Rows()+2, b.Cols()+2

	passable := func(r, c int) bool {
		if r == 0 || c == 0 || r == pr-1 || c == pc-1 {
			return true
		}
		return b.At(r-1, c-1) == board.Empty
	}

	// best[(r*pc+c)*4+d] is the fewest turns seen entering (r,c) while
	// moving in direction d. Initialized one past the budget so any
	// reachable state improves it.
	best := make([]int, pr*pc*4)
	for i := range best {
		best[i] = turnBudget + 1
	}

	queue := []state{{r: sr, c: sc, dir: -1, turns: 0}}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]

		for d, delta := range dirs {
			turns := s.turns
			if s.dir != -1 && s.dir != d {
				turns++
			}
			if turns > turnBudget {
				continue
			}

			// Extend a ray: every empty cell along it is reachable in
			// the same number of turns.
			nr, nc := s.r+delta[0], s.c+delta[1]
			for nr >= 0 && nr < pr && nc >= 0 && nc < pc {
				if nr == tr && nc == tc {
					return true
				}
				if !passable(nr, nc) {
					break
				}
				if idx := (nr*pc+nc)*4 + d; turns < best[idx] {
					best[idx] = turns
					queue = append(queue, state{r: nr, c: nc, dir: d, turns: turns})
				}
				nr += delta[0]
				nc += delta[1]
			}
		}
	}
	return false
}

// FindPair returns the first connectable pair of equal tiles in
// row-major order: the first cell is the earliest positive cell that
// has any connectable partner, and the pair's second cell is that
// partner, scanning forward from the first. A false result means no
// move exists on the board, which is a normal end-of-game condition
// rather than an error.
func FindPair(b *board.Board) (board.Pair, bool) {
	rows, cols := b.Rows(), b.Cols()
	for r1 := 0; r1 < rows; r1++ {
		for c1 := 0; c1 < cols; c1++ {
			if b.At(r1, c1) <= 0 {
				continue
			}
			first := board.Cell{Row: r1, Col: c1}
			for r2 := r1; r2 < rows; r2++ {
				c2 := 0
				if r2 == r1 {
					c2 = c1 + 1
				}
				for ; c2 < cols; c2++ {
					if b.At(r2, c2) != b.At(r1, c1) {
						continue
					}
					second := board.Cell{Row: r2, Col: c2}
					if CanConnect(b, first, second) {
						return board.Pair{A: first, B: second}, true
					}
				}
			}
		}
	}
	return board.Pair{}, false
}
