// Package live streams a sequence cell to browsers over WebSocket.
//
// A Feed subscribes to a reactive.ReadonlyCell holding a slice. Each item
// is identified by a string key. After every flush that changes the slice,
// the feed diffs the previous keys against the new ones with
// reconcile.Diff and broadcasts the result:
//
//	{"type":"ops","seq":4,"removed":["c"],"ops":[{"kind":"move","keys":["a"],"before":"d"}]}
//
// A client that connects first receives the whole list:
//
//	{"type":"reset","seq":3,"items":["b","a","d"]}
//
// Ops are applied in order. A client that sees a gap in seq should
// reconnect to get a fresh reset.
//
// # Usage
//
//	items := reactive.NewCell(s, []Todo{...})
//	feed, err := live.NewFeed(items, func(t Todo) string { return t.ID }, live.Config{})
//	r.Handle("/ws", feed)
//	r.Handle("/", live.Page("todos", "/ws"))
//
// The feed's subscription belongs to the scheduler's goroutine, so Close
// must run there too (for example through Loop.Do).
package live
