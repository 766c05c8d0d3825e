// Package reorder restores sequence order from out-of-order unit results.
//
// A Buffer tracks the next expected sequence number. Results that arrive
// early are held until every lower sequence number has been emitted;
// results below the cursor are duplicates and are dropped.
//
// Basic usage:
//
//	buf := reorder.New(func(r types.UnitResult) error {
//	    return writeUnit(r)
//	})
//
//	for r := range results {
//	    if _, err := buf.Push(r); err != nil {
//	        return err
//	    }
//	}
//
//	missing, err := buf.Finalize(total)
//
// A Buffer is not safe for concurrent use; it belongs to the goroutine
// consuming the collector stream.
package reorder
