package snowflake

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Generator allocates 64-bit time-sortable message ids. Ids are generated on
// the sender side before any persistence and act as the idempotency key for
// the whole delivery pipeline.
type Generator struct {
	node *snowflake.Node
}

// New creates a generator for the given node id. Every running instance of
// the service must use a distinct node id or ids can collide.
func New(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("creating snowflake node %d: %w", nodeID, err)
	}
	return &Generator{node: node}, nil
}

// NextID returns the next unique id. Safe for concurrent use.
func (g *Generator) NextID() int64 {
	return g.node.Generate().Int64()
}
