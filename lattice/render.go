package lattice

import "strings"

// Render draws the current fold, residues as H/P joined by - and | bonds
func (e *Environment) Render() string {
	return Render(e.sequence, e.positions)
}

// Render draws a fold of the first len(positions) residues of the sequence
func Render(sequence Sequence, positions []Position) string {
	if len(positions) == 0 {
		return ""
	}
	minX, maxX := positions[0].X, positions[0].X
	minY, maxY := positions[0].Y, positions[0].Y
	for _, p := range positions[1:] {
		minX, maxX = min(minX, p.X), max(maxX, p.X)
		minY, maxY = min(minY, p.Y), max(maxY, p.Y)
	}

	rows := 2*(maxY-minY) + 1
	cols := 2*(maxX-minX) + 1
	canvas := make([][]byte, rows)
	for i := range canvas {
		canvas[i] = []byte(strings.Repeat(" ", cols))
	}
	cell := func(p Position) (int, int) {
		return 2 * (maxY - p.Y), 2 * (p.X - minX)
	}

	for i, p := range positions {
		r, c := cell(p)
		canvas[r][c] = byte(sequence[i])
		if i == 0 {
			continue
		}
		pr, pc := cell(positions[i-1])
		if pr == r {
			canvas[r][(c+pc)/2] = '-'
		} else {
			canvas[(r+pr)/2][c] = '|'
		}
	}

	lines := make([]string, rows)
	for i, row := range canvas {
		lines[i] = strings.TrimRight(string(row), " ")
	}
	return strings.Join(lines, "\n")
}
