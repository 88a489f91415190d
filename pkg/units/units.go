// Package units normalizes the unit strings found on raw records and
// provides conversion factors between them.
package units

import "strings"

// Unit is a canonical length unit.
type Unit int

const (
	Meters Unit = iota
	Millimeters
	Centimeters
	Kilometers
	Inches
	Feet
	Yards
	Miles
)

// All lists every canonical unit.
var All = []Unit{Meters, Millimeters, Centimeters, Kilometers, Inches, Feet, Yards, Miles}

func (u Unit) String() string {
	switch u {
	case Millimeters:
		return "mm"
	case Centimeters:
		return "cm"
	case Kilometers:
		return "km"
	case Inches:
		return "in"
	case Feet:
		return "ft"
	case Yards:
		return "yd"
	case Miles:
		return "mi"
	default:
		return "m"
	}
}

// metersPer holds the length of one unit in meters.
var metersPer = map[Unit]float64{
	Meters:      1,
	Millimeters: 0.001,
	Centimeters: 0.01,
	Kilometers:  1000,
	Inches:      0.0254,
	Feet:        0.3048,
	Yards:       0.9144,
	Miles:       1609.344,
}

var synonyms = map[string]Unit{
	"m": Meters, "meter": Meters, "meters": Meters, "metre": Meters, "metres": Meters,
	"mm": Millimeters, "millimeter": Millimeters, "millimeters": Millimeters,
	"millimetre": Millimeters, "millimetres": Millimeters,
	"cm": Centimeters, "centimeter": Centimeters, "centimeters": Centimeters,
	"centimetre": Centimeters, "centimetres": Centimeters,
	"km": Kilometers, "kilometer": Kilometers, "kilometers": Kilometers,
	"kilometre": Kilometers, "kilometres": Kilometers,
	"in": Inches, "inch": Inches, "inches": Inches,
	"ft": Feet, "foot": Feet, "feet": Feet,
	"yd": Yards, "yard": Yards, "yards": Yards,
	"mi": Miles, "mile": Miles, "miles": Miles,
}

// Parse maps a unit string to its canonical unit. Matching is case
// insensitive; anything unrecognized, including "", is Meters.
func Parse(s string) Unit {
	if u, ok := synonyms[strings.ToLower(strings.TrimSpace(s))]; ok {
		return u
	}
	return Meters
}

// Factor returns the scale that converts lengths in from into lengths in to.
func Factor(from, to Unit) float64 {
	if from == to {
		return 1
	}
	return metersPer[from] / metersPer[to]
}

// ConversionFactor returns the factor from the named unit to meters.
func ConversionFactor(from string) float64 {
	return Factor(Parse(from), Meters)
}

// ConversionFactorTo returns the factor between two named units.
func ConversionFactorTo(from, to string) float64 {
	return Factor(Parse(from), Parse(to))
}
