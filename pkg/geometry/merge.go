package geometry

// Merge concatenates geometry into one buffer set. Every input is baked
// first so all positions share one space. Index lists are offset by the
// running vertex count; Color is kept only when every input has it. The
// result owns all of its buffers.
func Merge(list []*GeometryData) *GeometryData {
	var total, triangles int
	allIndexed, allColored := len(list) > 0, len(list) > 0
	for _, g := range list {
		g.Bake()
		total += len(g.Attributes.Position)
		triangles += len(g.Attributes.Index)
		if g.Attributes.Index == nil {
			allIndexed = false
		}
		if len(g.Attributes.Color) != len(g.Attributes.Position) {
			allColored = false
		}
	}

	out := &GeometryData{}
	out.Attributes.Position = make([]float64, 0, total)
	if allIndexed {
		out.Attributes.Index = make([]uint32, 0, triangles)
	}
	if allColored {
		out.Attributes.Color = make([]float64, 0, total)
	}

	var offset uint32
	for _, g := range list {
		out.Attributes.Position = append(out.Attributes.Position, g.Attributes.Position...)
		if allIndexed {
			for _, idx := range g.Attributes.Index {
				out.Attributes.Index = append(out.Attributes.Index, idx+offset)
			}
		}
		if allColored {
			out.Attributes.Color = append(out.Attributes.Color, g.Attributes.Color...)
		}
		offset += uint32(g.VertexCount())
		g.Release()
	}
	return out
}
