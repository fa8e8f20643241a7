package dispatch

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// turn serializes everything that runs listener code: loop units and sync
// passes entered through Do. The goroutine holding the turn may re-enter it
// from the code it runs, so a listener can trigger or drain again.
type turn struct {
	mu    sync.Mutex
	owner atomic.Int64
	depth int // only touched by the owner
}

func (t *turn) enter() {
	id := goid()
	if id != 0 && t.owner.Load() == id {
		t.depth++
		return
	}
	t.mu.Lock()
	t.owner.Store(id)
	t.depth = 1
}

func (t *turn) exit() {
	t.depth--
	if t.depth == 0 {
		t.owner.Store(0)
		t.mu.Unlock()
	}
}

// goid returns the id of the calling goroutine, read from the first line
// of its stack: "goroutine 18 [running]:".
func goid() int64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseInt(string(b), 10, 64)
	return id
}
