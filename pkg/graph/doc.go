// Package graph defines the object graph types consumed by the geometry
// converter: raw Speckle records, the nodes that wrap them, and the
// canonical geometry kinds a speckle_type chain resolves to.
package graph
