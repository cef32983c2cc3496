package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Liergab/peercall/internal/domain"
)

func TestParseTopology(t *testing.T) {
	t.Run("mesh", func(t *testing.T) {
		topo, err := domain.ParseTopology("mesh")
		assert.NoError(t, err)
		assert.Equal(t, domain.TopologyMesh, topo)
	})

	t.Run("star", func(t *testing.T) {
		topo, err := domain.ParseTopology("star")
		assert.NoError(t, err)
		assert.Equal(t, domain.TopologyStar, topo)
	})

	t.Run("anything else is rejected", func(t *testing.T) {
		for _, bad := range []string{"", "ring", "Mesh", "STAR"} {
			_, err := domain.ParseTopology(bad)
			assert.ErrorIs(t, err, domain.ErrUnknownTopology, "input %q", bad)
		}
	})
}
