package surface

import (
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

// Geometry is an indexed triangle mesh. Triangles are wound counter-clockwise
// when seen from the side their normals point to.
type Geometry struct {
	Positions []ms3.Vec
	Normals   []ms3.Vec
	UVs       []ms2.Vec
	Indices   []uint32
}

// NumVertices returns the number of vertices in the mesh.
func (g *Geometry) NumVertices() int { return len(g.Positions) }

// NumTriangles returns the number of indexed triangles.
func (g *Geometry) NumTriangles() int { return len(g.Indices) / 3 }

// NewPlane returns a width by height plane on z=0 centered at the origin and
// facing +Z, subdivided in segX by segY quads. UV (0,0) is the bottom left corner.
func NewPlane(width, height float32, segX, segY int) Geometry {
	segX = max(segX, 1)
	segY = max(segY, 1)
	gridX1 := segX + 1
	gridY1 := segY + 1
	segW := width / float32(segX)
	segH := height / float32(segY)
	g := Geometry{
		Positions: make([]ms3.Vec, 0, gridX1*gridY1),
		Normals:   make([]ms3.Vec, 0, gridX1*gridY1),
		UVs:       make([]ms2.Vec, 0, gridX1*gridY1),
		Indices:   make([]uint32, 0, 6*segX*segY),
	}
	for iy := 0; iy < gridY1; iy++ {
		y := height/2 - float32(iy)*segH
		for ix := 0; ix < gridX1; ix++ {
			x := float32(ix)*segW - width/2
			g.Positions = append(g.Positions, ms3.Vec{X: x, Y: y})
			g.Normals = append(g.Normals, ms3.Vec{Z: 1})
			g.UVs = append(g.UVs, ms2.Vec{X: float32(ix) / float32(segX), Y: 1 - float32(iy)/float32(segY)})
		}
	}
	for iy := 0; iy < segY; iy++ {
		for ix := 0; ix < segX; ix++ {
			a := uint32(ix + gridX1*iy)
			b := uint32(ix + gridX1*(iy+1))
			c := uint32(ix + 1 + gridX1*(iy+1))
			d := uint32(ix + 1 + gridX1*iy)
			g.Indices = append(g.Indices, a, b, d, b, c, d)
		}
	}
	return g
}
