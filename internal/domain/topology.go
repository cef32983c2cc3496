package domain

import "errors"

// Topology selects who holds a direct connection to whom.
type Topology string

const (
	TopologyMesh Topology = "mesh"
	TopologyStar Topology = "star"
)

var ErrUnknownTopology = errors.New("unknown topology")

func ParseTopology(s string) (Topology, error) {
	switch Topology(s) {
	case TopologyMesh:
		return TopologyMesh, nil
	case TopologyStar:
		return TopologyStar, nil
	}
	return "", ErrUnknownTopology
}
