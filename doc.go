// Package condmutex provides a mutex paired with a named-event condition variable. Tasks serialize
// through Mutex.Lock and coordinate inside it with Cond.Wait and Cond.Signal on event names, such as
// a producer waiting for "shift" while a consumer waits for "push".
package condmutex
