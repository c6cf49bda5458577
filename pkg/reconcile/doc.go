// Package reconcile patches an ordered container of identity-stable nodes
// from one sequence to another with the fewest insert and move operations.
//
// Nodes already in the right relative order are found with a longest
// increasing subsequence over their old positions and never touched. Every
// other surviving node is moved, new nodes are inserted, and adjacent nodes
// of the same kind travel together in one InsertBefore or Append call:
//
//	list := reconcile.NewList("A", "B", "C", "D")
//	stats, err := reconcile.Reconcile(list, list.Items(), []string{"A", "C", "B", "D"})
//	// stats.Moved == 1, A and D untouched
//
// Only flat sequences are reconciled; nodes are compared with ==.
package reconcile
