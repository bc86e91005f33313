// Package subscriber implements §4.J: reading the global event stream with
// per-consumer cursors and handing delivered batches to a Handler, the
// extension point new notification mechanisms plug into without any
// scheduler change.
package subscriber
