// Package dnstres implements a fixed-size DNS resolver thread pool that
// consumes a doubly-linked list of refcounted host batches. Each batch
// owns a cursor protected by its own lock so multiple pool workers can
// drain the same batch concurrently. A batch's on_done callback fires
// when its refcount drops to zero, after every OnResolved call made for
// it has returned, rather than by waiting on the cursor; a batch still
// queued when the pool closes fires it with its remaining hosts
// unresolved.
package dnstres
