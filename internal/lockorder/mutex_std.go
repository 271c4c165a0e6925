//go:build !deadlock_detection

package lockorder

import "sync"

type mutex = sync.Mutex

// Detecting reports whether lock order detection is compiled in.
const Detecting = false
