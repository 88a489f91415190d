// Package export writes converted render views as a binary glTF scene.
package export

import (
	"fmt"
	"io"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/chazu/speckleconv/pkg/graph"
	"github.com/chazu/speckleconv/pkg/traverse"
)

const generator = "speckleconv"

// Build assembles a glTF document with one node per view. Views with
// vertices get a mesh; views carrying only metadata become empty nodes
// whose extras hold the record. Positions are baked before writing.
func Build(views []traverse.RenderView) *gltf.Document {
	doc := gltf.NewDocument()
	doc.Asset.Generator = generator

	pbr := &gltf.PBRMetallicRoughness{
		BaseColorFactor: &[4]float32{1, 1, 1, 1},
		MetallicFactor:  gltf.Float(0),
		RoughnessFactor: gltf.Float(1),
	}
	doc.Materials = []*gltf.Material{{Name: "default", PBRMetallicRoughness: pbr, AlphaMode: gltf.AlphaOpaque}}

	for _, v := range views {
		if v.Geometry == nil {
			continue
		}
		node := &gltf.Node{Name: v.NodeID}
		m := v.Matrix()

		if v.Geometry.IsEmpty() {
			if v.Geometry.MetaData == nil {
				continue
			}
			// Nothing to bake: the bake transform is the record's own frame.
			if v.Geometry.BakeTransform != nil {
				m = m.Mul4(*v.Geometry.BakeTransform)
			}
			node.Extras = map[string]any{"type": v.Type.String(), "data": map[string]any(v.Geometry.MetaData)}
		} else {
			doc.Meshes = append(doc.Meshes, &gltf.Mesh{
				Name:       v.NodeID,
				Primitives: []*gltf.Primitive{primitive(doc, v)},
			})
			node.Mesh = gltf.Index(uint32(len(doc.Meshes) - 1))
		}
		if m != mgl64.Ident4() {
			node.Matrix = [16]float64(m)
		}

		doc.Nodes = append(doc.Nodes, node)
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, uint32(len(doc.Nodes)-1))
	}
	return doc
}

func primitive(doc *gltf.Document, v traverse.RenderView) *gltf.Primitive {
	gd := v.Geometry
	gd.Bake()
	attrs := gd.Attributes

	positions := make([][3]float32, len(attrs.Position)/3)
	for i := range positions {
		positions[i] = [3]float32{
			float32(attrs.Position[3*i]),
			float32(attrs.Position[3*i+1]),
			float32(attrs.Position[3*i+2]),
		}
	}

	prim := &gltf.Primitive{
		Attributes: map[string]uint32{
			gltf.POSITION: uint32(modeler.WritePosition(doc, positions)),
		},
		Material: gltf.Index(0),
		Mode:     mode(v.Type, len(attrs.Index) > 0),
	}
	if len(attrs.Color) == len(attrs.Position) {
		colors := make([][4]float32, len(positions))
		for i := range colors {
			colors[i] = [4]float32{
				float32(attrs.Color[3*i]),
				float32(attrs.Color[3*i+1]),
				float32(attrs.Color[3*i+2]),
				1,
			}
		}
		prim.Attributes[gltf.COLOR_0] = uint32(modeler.WriteColor(doc, colors))
	}
	if len(attrs.Index) > 0 {
		prim.Indices = gltf.Index(uint32(modeler.WriteIndices(doc, attrs.Index)))
	}
	return prim
}

// mode picks the primitive topology. Boxes are emitted as edge pairs and
// points as bare vertices; every other index-free kind is an ordered strip.
func mode(t graph.SpeckleType, indexed bool) gltf.PrimitiveMode {
	switch {
	case indexed:
		return gltf.PrimitiveTriangles
	case t == graph.Box:
		return gltf.PrimitiveLines
	case t == graph.Point || t == graph.Pointcloud:
		return gltf.PrimitivePoints
	default:
		return gltf.PrimitiveLineStrip
	}
}

// WriteGLB encodes the views as a binary glTF stream.
func WriteGLB(views []traverse.RenderView, w io.Writer) error {
	enc := gltf.NewEncoder(w)
	enc.AsBinary = true
	if err := enc.Encode(Build(views)); err != nil {
		return fmt.Errorf("encode glb: %w", err)
	}
	return nil
}

// SaveGLB writes the views to a .glb file at path.
func SaveGLB(views []traverse.RenderView, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteGLB(views, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
