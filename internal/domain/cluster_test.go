package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClusterSize(t *testing.T) {
	c := &Cluster{SignalIDs: []string{"a", "b", "c"}}
	assert.Equal(t, 3, c.Size())
	assert.Zero(t, (&Cluster{}).Size())
}
