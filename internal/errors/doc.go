// Package errors provides coded, printable errors for the cellgraph CLI and
// its configuration loader.
//
// Each code (e.g. "E120") maps to a category, a short message and a longer
// explanation. Callers attach what they know about the failure:
//
//	err := errors.New("E120").
//	    WithOffset("cellgraph.json", data, syntaxErr.Offset).
//	    WithSuggestion("Check for a trailing comma").
//	    Wrap(syntaxErr)
//
//	fmt.Fprint(os.Stderr, err.Format())
//
// # Categories
//
//   - runtime: scheduler failures (cycles, circular reads, observers)
//   - reconcile: invalid sequences
//   - live: websocket and listener failures
//   - config: cellgraph.json problems
//   - cli: bad command-line input
//
// Format renders a multi-line, coloured report. FormatCompact and FormatJSON
// produce single-line forms for logs.
package errors
