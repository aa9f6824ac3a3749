// Package idgen issues time-ordered int64 ids for items and ledger entries.
package idgen

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Snowflake wraps a snowflake node. Ids from one node increase strictly,
// so id order is insertion order.
type Snowflake struct {
	node *snowflake.Node
}

// New creates a generator for the given node number (0-1023).
func New(node int64) (*Snowflake, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("init snowflake node %d: %w", node, err)
	}
	return &Snowflake{node: n}, nil
}

// NextID implements stock.IDGenerator.
func (s *Snowflake) NextID() int64 {
	return s.node.Generate().Int64()
}
