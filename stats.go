package condmutex

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"sync/atomic"
)

type Count struct {
	n int64
}

var _ fmt.Stringer = (*Count)(nil)

func (me *Count) Add(n int64) {
	atomic.AddInt64(&me.n, n)
}

func (me *Count) Int64() int64 {
	return atomic.LoadInt64(&me.n)
}

func (me *Count) String() string {
	return strconv.FormatInt(me.Int64(), 10)
}

func (me *Count) MarshalJSON() ([]byte, error) {
	return json.Marshal(me.Int64())
}

// Stats counts lock and event activity over the lifetime of a Mutex. Every field must be a Count.
type Stats struct {
	// Times the lock was taken. Re-taking the lock at the end of Wait counts too.
	Acquires Count
	// Acquisitions that had to queue behind another task.
	Contended Count
	// Acquires and Waits abandoned because their context finished.
	Cancelled Count
	Waits      Count
	Signals    Count
	Broadcasts Count
}

func (me *Stats) Copy() Stats {
	return copyCountFields(me)
}

func copyCountFields[T any](src *T) (dst T) {
	srcValue := reflect.ValueOf(src).Elem()
	dstValue := reflect.ValueOf(&dst).Elem()
	for i := 0; i < reflect.TypeFor[T]().NumField(); i++ {
		n := srcValue.Field(i).Addr().Interface().(*Count).Int64()
		dstValue.Field(i).Addr().Interface().(*Count).Add(n)
	}
	return
}
