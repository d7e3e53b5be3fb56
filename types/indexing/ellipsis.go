package indexing

import (
	"github.com/gomlx/exceptions"

	"github.com/gomlx/tensordict/types/shapes"
)

// ExpandEllipsis rewrites the index expression into one explicit Axis per
// dimension of dims: the (at most one) Ellipsis element is replaced by as many
// Full() elements as needed, and if no Ellipsis is present the expression is
// padded with Full() at the end.
//
// The returned expression always has exactly len(dims) elements.
//
// It panics if the expression has more than one Ellipsis, or if it has more
// explicit elements than dims has dimensions.
func ExpandEllipsis(dims []int, axes ...Axis) []Axis {
	numEllipsis := 0
	ellipsisPos := -1
	for pos, axis := range axes {
		if axis.Kind() == AxisEllipsis {
			if numEllipsis > 0 {
				exceptions.Panicf("an index can have at most one ellipsis, got %s", exprString(axes))
			}
			numEllipsis++
			ellipsisPos = pos
		}
	}
	if len(dims) < len(axes)-numEllipsis {
		exceptions.Panicf("not enough dimensions in batch shape %s for the index %s",
			shapes.DimsString(dims), exprString(axes))
	}

	if ellipsisPos == -1 {
		// No ellipsis: pad with Full() at the end.
		expanded := make([]Axis, 0, len(dims))
		expanded = append(expanded, axes...)
		for len(expanded) < len(dims) {
			expanded = append(expanded, Full())
		}
		return expanded
	}

	numBefore := ellipsisPos
	numAfter := len(axes) - ellipsisPos - 1
	numExpanded := len(dims) - numBefore - numAfter

	expanded := make([]Axis, 0, len(dims))
	expanded = append(expanded, axes[:ellipsisPos]...)
	for ii := 0; ii < numExpanded; ii++ {
		expanded = append(expanded, Full())
	}
	expanded = append(expanded, axes[ellipsisPos+1:]...)
	if len(expanded) != len(dims) {
		exceptions.Panicf("the expanded index %s is incompatible with the %d dimensions of the batch shape",
			exprString(expanded), len(dims))
	}
	return expanded
}
