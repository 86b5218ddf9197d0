// Package eds is the event-driven service supervisor: a process that
// preforks nprocs workers per configured Service, each worker owning a
// poll loop over accepted clients on an already-bound Unix socket.
// Callback transitions replace the original's swapped function-pointer
// pairs with a tagged-state Transition value, and child processes are
// reexecs of the supervisor's own binary rather than raw fork(2), since
// forking a multithreaded Go runtime is unsafe.
package eds
