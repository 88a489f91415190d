package graph

// SpeckleType enumerates the canonical geometry kinds a raw speckle_type
// chain can resolve to.
type SpeckleType int

const (
	Unknown SpeckleType = iota
	Mesh
	Pointcloud
	Brep
	Point
	Line
	Polyline
	Box
	Polycurve
	Curve
	Circle
	Arc
	Ellipse
	BlockInstance
	RevitInstance
	Transform
	Text
	View3D
)

var speckleTypeNames = [...]string{
	Unknown:       "Unknown",
	Mesh:          "Mesh",
	Pointcloud:    "Pointcloud",
	Brep:          "Brep",
	Point:         "Point",
	Line:          "Line",
	Polyline:      "Polyline",
	Box:           "Box",
	Polycurve:     "Polycurve",
	Curve:         "Curve",
	Circle:        "Circle",
	Arc:           "Arc",
	Ellipse:       "Ellipse",
	BlockInstance: "BlockInstance",
	RevitInstance: "RevitInstance",
	Transform:     "Transform",
	Text:          "Text",
	View3D:        "View3D",
}

// typesByName maps a bare class name to its kind. Unknown is deliberately
// absent so that a class literally named "Unknown" does not match.
var typesByName = func() map[string]SpeckleType {
	m := make(map[string]SpeckleType, len(speckleTypeNames))
	for i, name := range speckleTypeNames {
		if SpeckleType(i) == Unknown {
			continue
		}
		m[name] = SpeckleType(i)
	}
	return m
}()

func (t SpeckleType) String() string {
	if t < 0 || int(t) >= len(speckleTypeNames) {
		return "Unknown"
	}
	return speckleTypeNames[t]
}

// IsContainer reports whether nodes of this kind carry no geometry of their
// own and defer to a display value or a child list.
func (t SpeckleType) IsContainer() bool {
	switch t {
	case BlockInstance, RevitInstance, Brep:
		return true
	default:
		return false
	}
}

// ParseSpeckleType returns the kind for a bare class name.
func ParseSpeckleType(name string) (SpeckleType, bool) {
	t, ok := typesByName[name]
	return t, ok
}
