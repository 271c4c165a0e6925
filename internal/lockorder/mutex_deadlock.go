//go:build deadlock_detection

package lockorder

import "github.com/sasha-s/go-deadlock"

type mutex = deadlock.Mutex

// Detecting reports whether lock order detection is compiled in.
const Detecting = true
