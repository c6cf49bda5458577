package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/cellgraph/internal/errors"
	"github.com/vango-dev/cellgraph/pkg/live"
	"github.com/vango-dev/cellgraph/pkg/reconcile"
)

func diffCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "diff CURRENT TARGET",
		Short: "Print the reconcile plan between two sequences",
		Long: `Print the removals, inserts and moves that turn CURRENT into TARGET.

Sequences are comma-separated keys. Pass "" for an empty sequence.
Moves are minimal: only items outside a longest increasing subsequence
of the current positions are relocated.

Examples:
  cellgraph diff A,B,C,D A,C,B,D
  cellgraph diff A,B,C D,C,B,A --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd.OutOrStdout(), args[0], args[1], asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the plan as JSON")

	return cmd
}

// parseSequence splits a comma-separated argument into keys.
func parseSequence(arg string) ([]string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil, nil
	}
	parts := strings.Split(arg, ",")
	keys := make([]string, 0, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, errors.New("E160").
				WithDetail(fmt.Sprintf("Item %d of %q is empty.", i+1, arg)).
				WithExample("cellgraph diff A,B,C A,C,B")
		}
		keys = append(keys, p)
	}
	return keys, nil
}

type diffOutput struct {
	Removed []string         `json:"removed"`
	Ops     []live.OpMessage `json:"ops"`
	Stats   reconcile.Stats  `json:"stats"`
	Result  []string         `json:"result"`
}

func computeDiff(currentArg, targetArg string) (diffOutput, error) {
	current, err := parseSequence(currentArg)
	if err != nil {
		return diffOutput{}, err
	}
	target, err := parseSequence(targetArg)
	if err != nil {
		return diffOutput{}, err
	}

	plan, err := reconcile.Diff(current, target)
	if err != nil {
		if stderrors.Is(err, reconcile.ErrDuplicateItem) {
			return diffOutput{}, errors.New("E040").Wrap(err)
		}
		return diffOutput{}, err
	}

	list := reconcile.NewList(current...)
	reconcile.Apply(list, plan)

	return diffOutput{
		Removed: plan.Removed,
		Ops:     live.OpsOf(plan),
		Stats:   plan.Stats(),
		Result:  list.Items(),
	}, nil
}

func runDiff(w io.Writer, currentArg, targetArg string, asJSON bool) error {
	out, err := computeDiff(currentArg, targetArg)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(out.Removed) > 0 {
		fmt.Fprintf(w, "  remove  %s\n", strings.Join(out.Removed, ","))
	}
	for _, op := range out.Ops {
		where := "before " + op.Before
		if op.AtEnd {
			where = "at end"
		}
		fmt.Fprintf(w, "  %-7s %s %s\n", op.Kind, strings.Join(op.Keys, ","), where)
	}
	if len(out.Removed) == 0 && len(out.Ops) == 0 {
		fmt.Fprintln(w, "  (no changes)")
	}
	fmt.Fprintln(w)
	s := out.Stats
	fmt.Fprintf(w, "  removed=%d inserted=%d moved=%d stable=%d ops=%d\n",
		s.Removed, s.Inserted, s.Moved, s.Stable, s.Ops)
	fmt.Fprintf(w, "  result: %s\n", strings.Join(out.Result, ","))
	return nil
}
