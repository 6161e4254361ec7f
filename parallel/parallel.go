// Package parallel provides the data-parallel fan-out primitive used at the
// two points within a frame worth parallelizing: per-scan-line
// curvature/keypoint work, and per-keypoint neighbor search in the matcher.
// It mirrors the group-partitioning shape of go.viam.com/rdk's
// utils.GroupWorkParallel, built directly on go.viam.com/utils.PanicCapturingGo.
package parallel

import (
	"math"
	"runtime"
	"sync"

	"go.viam.com/utils"
)

// Factor bounds how many goroutines ForEachIndex spawns. It defaults to
// GOMAXPROCS and may be lowered in tests where oversubscription just adds
// scheduling noise to small inputs.
var Factor = runtime.GOMAXPROCS(0)

func init() {
	if Factor <= 0 {
		Factor = 1
	}
}

// ForEachIndex partitions [0, n) into contiguous groups and runs fn(i) for
// every i, Factor groups at a time. It is a synchronization barrier: every
// group finishes before it returns. A panic inside fn is recovered and
// logged by PanicCapturingGo and does not reach the caller; the remaining
// indices of that group are not run.
func ForEachIndex(n int, fn func(i int)) {
	if n == 0 {
		return
	}
	workers := Factor
	if workers > n {
		workers = n
	}
	groupSize := int(math.Ceil(float64(n) / float64(workers)))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		from := w * groupSize
		to := from + groupSize
		if to > n {
			to = n
		}
		if from >= to {
			continue
		}
		wg.Add(1)
		utils.PanicCapturingGo(func() {
			defer wg.Done()
			for i := from; i < to; i++ {
				fn(i)
			}
		})
	}
	wg.Wait()
}
