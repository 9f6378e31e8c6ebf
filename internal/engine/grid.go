package engine

import (
	"math/rand"
	"slices"
)

const (
	GridSize   = 10
	FleetCells = 17

	placeAttemptsPerShip = 100
)

// FleetSizes is the fixed fleet every team must field, largest first.
var FleetSizes = []int{5, 4, 3, 3, 2}

// Grid is indexed [y][x].
type Grid[T any] [GridSize][GridSize]T

type FleetGrid = Grid[bool]

type AttackGrid = Grid[Cell]

type Cell string

const (
	CellUnknown Cell = "unknown"
	CellHit     Cell = "hit"
	CellMiss    Cell = "miss"
)

type Coord struct {
	X int
	Y int
}

func CreateGrid[T any](value T) Grid[T] {
	var g Grid[T]
	for y := 0; y < GridSize; y++ {
		for x := 0; x < GridSize; x++ {
			g[y][x] = value
		}
	}
	return g
}

func InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < GridSize && y < GridSize
}

// FleetFromRows converts a wire grid into a FleetGrid. Anything other than
// exactly GridSize rows of GridSize cells is an invalid fleet.
func FleetFromRows(rows [][]bool) (FleetGrid, error) {
	var g FleetGrid
	if len(rows) != GridSize {
		return g, ErrInvalidFleetShape
	}
	for y, row := range rows {
		if len(row) != GridSize {
			return g, ErrInvalidFleetShape
		}
		copy(g[y][:], row)
	}
	return g, nil
}

func (g *Grid[T]) Rows(conv func(T) string) [][]string {
	rows := make([][]string, GridSize)
	for y := 0; y < GridSize; y++ {
		rows[y] = make([]string, GridSize)
		for x := 0; x < GridSize; x++ {
			rows[y][x] = conv(g[y][x])
		}
	}
	return rows
}

// DetectShips scans row-major. From every unvisited occupied cell it takes the
// maximal horizontal run; only a run of length one is re-read vertically.
func DetectShips(fleet FleetGrid) [][]Coord {
	var visited FleetGrid
	var ships [][]Coord

	for y := 0; y < GridSize; y++ {
		for x := 0; x < GridSize; x++ {
			if !fleet[y][x] || visited[y][x] {
				continue
			}

			ship := []Coord{{X: x, Y: y}}
			for nx := x + 1; nx < GridSize && fleet[y][nx] && !visited[y][nx]; nx++ {
				ship = append(ship, Coord{X: nx, Y: y})
			}
			if len(ship) == 1 {
				for ny := y + 1; ny < GridSize && fleet[ny][x] && !visited[ny][x]; ny++ {
					ship = append(ship, Coord{X: x, Y: ny})
				}
			}

			for _, c := range ship {
				visited[c.Y][c.X] = true
			}
			ships = append(ships, ship)
		}
	}
	return ships
}

// ValidateFleet returns the detected ships when the grid holds exactly the
// required fleet.
func ValidateFleet(fleet FleetGrid) ([][]Coord, error) {
	cells := 0
	for y := 0; y < GridSize; y++ {
		for x := 0; x < GridSize; x++ {
			if fleet[y][x] {
				cells++
			}
		}
	}
	if cells != FleetCells {
		return nil, ErrInvalidFleetShape
	}

	ships := DetectShips(fleet)
	sizes := make([]int, 0, len(ships))
	for _, s := range ships {
		sizes = append(sizes, len(s))
	}
	slices.SortFunc(sizes, func(a, b int) int { return b - a })
	if !slices.Equal(sizes, FleetSizes) {
		return nil, ErrInvalidFleetShape
	}
	return ships, nil
}

// PlaceFleetRandomly lays out FleetSizes with random orientation. Ships never
// overlap or touch orthogonally, so DetectShips reads the layout back exactly.
func PlaceFleetRandomly(rng *rand.Rand) (FleetGrid, [][]Coord) {
	for {
		grid, ships, ok := tryPlaceFleet(rng)
		if ok {
			return grid, ships
		}
	}
}

func tryPlaceFleet(rng *rand.Rand) (FleetGrid, [][]Coord, bool) {
	var grid FleetGrid
	ships := make([][]Coord, 0, len(FleetSizes))

	for _, size := range FleetSizes {
		placed := false
		for attempt := 0; attempt < placeAttemptsPerShip; attempt++ {
			horizontal := rng.Intn(2) == 0
			x, y := rng.Intn(GridSize), rng.Intn(GridSize)

			cells := make([]Coord, 0, size)
			for i := 0; i < size; i++ {
				c := Coord{X: x, Y: y + i}
				if horizontal {
					c = Coord{X: x + i, Y: y}
				}
				cells = append(cells, c)
			}
			if !canPlace(&grid, cells) {
				continue
			}
			for _, c := range cells {
				grid[c.Y][c.X] = true
			}
			ships = append(ships, cells)
			placed = true
			break
		}
		if !placed {
			return grid, nil, false
		}
	}
	return grid, ships, true
}

func canPlace(grid *FleetGrid, cells []Coord) bool {
	for _, c := range cells {
		if !InBounds(c.X, c.Y) || grid[c.Y][c.X] {
			return false
		}
		for _, n := range neighbours(c) {
			if InBounds(n.X, n.Y) && grid[n.Y][n.X] {
				return false
			}
		}
	}
	return true
}

func neighbours(c Coord) [4]Coord {
	return [4]Coord{
		{X: c.X, Y: c.Y - 1},
		{X: c.X, Y: c.Y + 1},
		{X: c.X - 1, Y: c.Y},
		{X: c.X + 1, Y: c.Y},
	}
}

type Ship struct {
	Cells []Coord
	Hits  int
	Sunk  bool
}

func (s Ship) Size() int { return len(s.Cells) }

func NewShips(cells [][]Coord) []Ship {
	ships := make([]Ship, 0, len(cells))
	for _, c := range cells {
		ships = append(ships, Ship{Cells: slices.Clone(c)})
	}
	return ships
}
