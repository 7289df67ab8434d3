// SPDX-License-Identifier: AGPL-3.0-or-later
package dispatch

import (
	"container/heap"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityQueue_OrdersByPriorityThenSeq(t *testing.T) {
	t.Parallel()

	q := &priorityQueue{}
	heap.Init(q)

	heap.Push(q, &job{priority: 3, seq: 1, messageID: 100})
	heap.Push(q, &job{priority: 1, seq: 2, messageID: 200})
	heap.Push(q, &job{priority: 1, seq: 3, messageID: 300})
	heap.Push(q, &job{priority: 2, seq: 4, messageID: 400})

	var order []int64
	for q.Len() > 0 {
		order = append(order, heap.Pop(q).(*job).messageID)
	}

	assert.Equal(t, []int64{200, 300, 400, 100}, order)
}
