package builtin

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/conduit-lang/assetforge/internal/compiler"
	"github.com/conduit-lang/assetforge/internal/modeldoc"
)

// groupRange is one face group's slice of the FACE block
type groupRange struct {
	Name          string `json:"name"`
	Material      string `json:"material,omitempty"`
	FirstTriangle int    `json:"first_triangle"`
	Triangles     int    `json:"triangles"`
}

// ModelCompiler compiles model documents into interleaved vertex and
// triangle index blocks
type ModelCompiler struct{}

func (ModelCompiler) Name() string { return "model" }

func (ModelCompiler) Compile(_ context.Context, rc *compiler.ResourceContext) error {
	doc, err := modeldoc.Parse(rc.Source())
	if err != nil {
		return err
	}

	for _, mat := range doc.Materials() {
		if !rc.RegisterReference(mat) {
			return fmt.Errorf("model references unknown material %s", mat)
		}
	}

	if err := rc.SetExtension("vmdl_c"); err != nil {
		return err
	}
	if err := rc.WriteBlock("VERT", encodeVertices(doc)); err != nil {
		return err
	}

	faces, groups := encodeFaces(doc)
	if err := rc.WriteBlock("FACE", faces); err != nil {
		return err
	}
	grps, err := json.Marshal(groups)
	if err != nil {
		return fmt.Errorf("failed to encode face groups: %w", err)
	}
	return rc.WriteBlock("GRPS", grps)
}

// encodeVertices interleaves position, normal and texcoord as 8 float32s
func encodeVertices(doc *modeldoc.Doc) []byte {
	positions := doc.Positions()
	normals := doc.Normals()
	texCoords := doc.TexCoords()

	var buf bytes.Buffer
	for i, p := range positions {
		var n modeldoc.Vec3
		var uv modeldoc.Vec2
		if normals != nil {
			n = normals[i]
		}
		if texCoords != nil {
			uv = texCoords[i]
		}
		binary.Write(&buf, binary.LittleEndian, [8]float32{p.X, p.Y, p.Z, n.X, n.Y, n.Z, uv.U, uv.V})
	}
	return buf.Bytes()
}

// encodeFaces fans faces into uint32 triangle indices, grouped in group order
func encodeFaces(doc *modeldoc.Doc) ([]byte, []groupRange) {
	var buf bytes.Buffer
	var ranges []groupRange
	first := 0
	for _, g := range doc.Groups() {
		count := 0
		for _, f := range g.Faces {
			for i := 1; i+1 < len(f); i++ {
				binary.Write(&buf, binary.LittleEndian, [3]uint32{uint32(f[0]), uint32(f[i]), uint32(f[i+1])})
				count++
			}
		}
		ranges = append(ranges, groupRange{Name: g.Name, Material: g.Material, FirstTriangle: first, Triangles: count})
		first += count
	}
	return buf.Bytes(), ranges
}
