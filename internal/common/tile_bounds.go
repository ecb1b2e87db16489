package common

import "fmt"

// TileCoord identifies one cell of the assembled canvas
type TileCoord struct {
	Col int
	Row int
}

// String returns "col,row"
func (c TileCoord) String() string {
	return fmt.Sprintf("%d,%d", c.Col, c.Row)
}

// TileBounds describes a square grid of Size x Size tiles
type TileBounds struct {
	Size int
}

// Count returns the number of tiles in the grid
func (tb TileBounds) Count() int {
	return tb.Size * tb.Size
}

// RowMajor lists every coordinate in the grid, row outer and column inner
func (tb TileBounds) RowMajor() []TileCoord {
	if tb.Size <= 0 {
		return nil
	}
	coords := make([]TileCoord, 0, tb.Count())
	for row := 0; row < tb.Size; row++ {
		for col := 0; col < tb.Size; col++ {
			coords = append(coords, TileCoord{Col: col, Row: row})
		}
	}
	return coords
}
