// Package modeldoc builds model documents incrementally from raw mesh data:
// vertex slots, per-vertex arrays and material-bound face groups.
package modeldoc

import (
	"fmt"
	"math"
	"sync"
)

// MaxVertices bounds the vertex slots of one document
const MaxVertices = 1 << 24

// Vec2 is a texture coordinate
type Vec2 struct {
	U float32 `json:"u"`
	V float32 `json:"v"`
}

// Vec3 is a position or normal
type Vec3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// FaceGroup is a named set of faces sharing one material
type FaceGroup struct {
	Name     string  `json:"name"`
	Material string  `json:"material,omitempty"`
	Faces    [][]int `json:"faces"`
}

// Doc is a model under construction. Per-vertex arrays that were never set
// are nil; arrays that were set always match the vertex count.
type Doc struct {
	vertexCount int
	positions   []Vec3
	texCoords   []Vec2
	normals     []Vec3
	groups      []FaceGroup
	mu          sync.Mutex
}

// New creates an empty document
func New() *Doc {
	return &Doc{}
}

// AddVertices reserves n more vertex slots. Arrays already set grow with
// zero values.
func (d *Doc) AddVertices(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCount, n)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if n > MaxVertices-d.vertexCount {
		return fmt.Errorf("%w: %d more vertices exceed the limit of %d", ErrInvalidCount, n, MaxVertices)
	}
	d.vertexCount += n
	if d.positions != nil {
		d.positions = append(d.positions, make([]Vec3, n)...)
	}
	if d.texCoords != nil {
		d.texCoords = append(d.texCoords, make([]Vec2, n)...)
	}
	if d.normals != nil {
		d.normals = append(d.normals, make([]Vec3, n)...)
	}
	return nil
}

// VertexCount returns the number of reserved vertices
func (d *Doc) VertexCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vertexCount
}

// SetPositions replaces the position array
func (d *Doc) SetPositions(positions []Vec3) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkCount("positions", len(positions)); err != nil {
		return err
	}
	if err := checkFinite3("positions", positions); err != nil {
		return err
	}
	d.positions = append([]Vec3{}, positions...)
	return nil
}

// SetTexCoords replaces the texture coordinate array
func (d *Doc) SetTexCoords(texCoords []Vec2) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkCount("texcoords", len(texCoords)); err != nil {
		return err
	}
	if err := checkFinite2("texcoords", texCoords); err != nil {
		return err
	}
	d.texCoords = append([]Vec2{}, texCoords...)
	return nil
}

// SetNormals replaces the normal array
func (d *Doc) SetNormals(normals []Vec3) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkCount("normals", len(normals)); err != nil {
		return err
	}
	if err := checkFinite3("normals", normals); err != nil {
		return err
	}
	d.normals = append([]Vec3{}, normals...)
	return nil
}

func (d *Doc) checkCount(what string, got int) error {
	if got != d.vertexCount {
		return fmt.Errorf("%w: %s has %d entries, %d vertices reserved", ErrCountMismatch, what, got, d.vertexCount)
	}
	return nil
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func checkFinite3(what string, vs []Vec3) error {
	for i, v := range vs {
		if !finite(v.X) || !finite(v.Y) || !finite(v.Z) {
			return fmt.Errorf("%w: %s[%d] is %v", ErrNonFinite, what, i, v)
		}
	}
	return nil
}

func checkFinite2(what string, vs []Vec2) error {
	for i, v := range vs {
		if !finite(v.U) || !finite(v.V) {
			return fmt.Errorf("%w: %s[%d] is %v", ErrNonFinite, what, i, v)
		}
	}
	return nil
}

// AddFaceGroup adds a face group bound to material and returns its index
func (d *Doc) AddFaceGroup(name, material string) (int, error) {
	if name == "" {
		return -1, fmt.Errorf("%w: empty name", ErrUnknownGroup)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, g := range d.groups {
		if g.Name == name {
			return -1, fmt.Errorf("%w: %s", ErrDuplicateGroup, name)
		}
	}
	d.groups = append(d.groups, FaceGroup{Name: name, Material: material})
	return len(d.groups) - 1, nil
}

// AddFace appends a polygon to a face group. Indices refer to reserved
// vertex slots.
func (d *Doc) AddFace(group int, indices []int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if group < 0 || group >= len(d.groups) {
		return fmt.Errorf("%w: index %d, %d groups", ErrUnknownGroup, group, len(d.groups))
	}
	if err := validateFace(indices, d.vertexCount); err != nil {
		return err
	}

	d.groups[group].Faces = append(d.groups[group].Faces, append([]int{}, indices...))
	return nil
}

func validateFace(indices []int, vertexCount int) error {
	if len(indices) < 3 {
		return fmt.Errorf("%w: %d indices, need at least 3", ErrDegenerateFace, len(indices))
	}
	seen := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i < 0 || i >= vertexCount {
			return fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, i, vertexCount)
		}
		if seen[i] {
			return fmt.Errorf("%w: index %d repeated", ErrDegenerateFace, i)
		}
		seen[i] = true
	}
	return nil
}

// Positions returns a copy of the position array
func (d *Doc) Positions() []Vec3 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Vec3(nil), d.positions...)
}

// TexCoords returns a copy of the texture coordinate array
func (d *Doc) TexCoords() []Vec2 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Vec2(nil), d.texCoords...)
}

// Normals returns a copy of the normal array
func (d *Doc) Normals() []Vec3 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Vec3(nil), d.normals...)
}

// Groups returns a copy of the face groups
func (d *Doc) Groups() []FaceGroup {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]FaceGroup, len(d.groups))
	for i, g := range d.groups {
		out[i] = FaceGroup{Name: g.Name, Material: g.Material, Faces: make([][]int, len(g.Faces))}
		for j, f := range g.Faces {
			out[i].Faces[j] = append([]int(nil), f...)
		}
	}
	return out
}

// Materials returns the distinct non-empty materials of the face groups in
// group order
func (d *Doc) Materials() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	seen := make(map[string]bool)
	for _, g := range d.groups {
		if g.Material != "" && !seen[g.Material] {
			seen[g.Material] = true
			out = append(out, g.Material)
		}
	}
	return out
}

// FaceCount returns the number of faces across all groups
func (d *Doc) FaceCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, g := range d.groups {
		n += len(g.Faces)
	}
	return n
}

// Triangles fans every face into triangles and returns their vertex indices
func (d *Doc) Triangles() [][3]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	var tris [][3]int
	for _, g := range d.groups {
		for _, f := range g.Faces {
			for i := 1; i+1 < len(f); i++ {
				tris = append(tris, [3]int{f[0], f[i], f[i+1]})
			}
		}
	}
	return tris
}

// Bounds returns the axis-aligned bounding box of the positions
func (d *Doc) Bounds() (lo, hi Vec3) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.positions) == 0 {
		return Vec3{}, Vec3{}
	}
	lo, hi = d.positions[0], d.positions[0]
	for _, p := range d.positions[1:] {
		lo = Vec3{min(lo.X, p.X), min(lo.Y, p.Y), min(lo.Z, p.Z)}
		hi = Vec3{max(hi.X, p.X), max(hi.Y, p.Y), max(hi.Z, p.Z)}
	}
	return lo, hi
}

// Validate checks the document is complete and consistent enough to save
func (d *Doc) Validate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.validate()
}

func (d *Doc) validate() error {
	if d.vertexCount < 0 || d.vertexCount > MaxVertices {
		return fmt.Errorf("%w: %d", ErrInvalidCount, d.vertexCount)
	}
	if d.vertexCount == 0 {
		return fmt.Errorf("%w: no vertices", ErrIncomplete)
	}
	if d.positions == nil {
		return fmt.Errorf("%w: positions not set", ErrIncomplete)
	}
	if err := d.checkCount("positions", len(d.positions)); err != nil {
		return err
	}
	if err := checkFinite3("positions", d.positions); err != nil {
		return err
	}
	if d.texCoords != nil {
		if err := d.checkCount("texcoords", len(d.texCoords)); err != nil {
			return err
		}
		if err := checkFinite2("texcoords", d.texCoords); err != nil {
			return err
		}
	}
	if d.normals != nil {
		if err := d.checkCount("normals", len(d.normals)); err != nil {
			return err
		}
		if err := checkFinite3("normals", d.normals); err != nil {
			return err
		}
	}

	faces := 0
	for _, g := range d.groups {
		for _, f := range g.Faces {
			if err := validateFace(f, d.vertexCount); err != nil {
				return fmt.Errorf("group %s: %w", g.Name, err)
			}
			faces++
		}
	}
	if faces == 0 {
		return fmt.Errorf("%w: no faces", ErrIncomplete)
	}
	return nil
}
