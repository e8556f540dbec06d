package main

import (
	"fmt"

	"blueprint-drafts/domain/config"
	"blueprint-drafts/domain/conflicts"
	"blueprint-drafts/domain/core/validators"
	"blueprint-drafts/domain/diff"
	"blueprint-drafts/domain/patch"

	"github.com/spf13/cobra"
)

// conflictError signals blocking conflicts under --fail-on-conflict
type conflictError struct {
	count int
}

func (e *conflictError) Error() string {
	return fmt.Sprintf("%d blocking conflict(s)", e.count)
}

type options struct {
	output            string
	surfaceSuperseded bool
	failOnConflict    bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "bpdiff",
		Short:         "Diff, patch and reconcile blueprint files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", formatJSON, "output format: json or yaml")

	root.AddCommand(newDiffCommand(opts), newApplyCommand(opts), newConflictsCommand(opts))
	return root
}

func newDiffer() *diff.Differ {
	return diff.NewDiffer(validators.NewBlueprintValidator(config.DefaultDomainConfig()))
}

func newDiffCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <from> <to>",
		Short: "Print the patch that turns one blueprint into another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := readBlueprint(args[0])
			if err != nil {
				return err
			}
			to, err := readBlueprint(args[1])
			if err != nil {
				return err
			}

			ops, err := newDiffer().Diff(from, to)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.output, patchFile{Ops: nonNil(ops)})
		},
	}
}

func newApplyCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <base> <patch>",
		Short: "Apply a patch to a blueprint and print the result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := readBlueprint(args[0])
			if err != nil {
				return err
			}
			p, err := readPatch(args[1])
			if err != nil {
				return err
			}

			result, err := patch.Apply(base, p.Ops)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.output, result.ToDocument())
		},
	}
}

// conflictReport is the printed classification of a proposal
type conflictReport struct {
	Clean      []patch.Op         `json:"clean"`
	Superseded []patch.Op         `json:"superseded"`
	Conflicts  []conflicts.Record `json:"conflicts"`
	Blocking   int                `json:"blocking"`
}

func newConflictsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts <base> <local> <proposal>",
		Short: "Classify a proposal against local edits of the same base",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := readBlueprint(args[0])
			if err != nil {
				return err
			}
			local, err := readBlueprint(args[1])
			if err != nil {
				return err
			}
			proposal, err := readBlueprint(args[2])
			if err != nil {
				return err
			}

			differ := newDiffer()
			localOps, err := differ.Diff(base, local)
			if err != nil {
				return fmt.Errorf("local: %w", err)
			}
			proposedOps, err := differ.Diff(base, proposal)
			if err != nil {
				return fmt.Errorf("proposal: %w", err)
			}

			result := conflicts.NewDetector(opts.surfaceSuperseded).Detect(localOps, proposedOps)
			report := conflictReport{
				Clean:      nonNil(result.Clean),
				Superseded: nonNil(result.Superseded),
				Conflicts:  result.Records,
				Blocking:   len(result.Blocking()),
			}
			if report.Conflicts == nil {
				report.Conflicts = []conflicts.Record{}
			}
			if err := writeOutput(cmd.OutOrStdout(), opts.output, report); err != nil {
				return err
			}

			if opts.failOnConflict && report.Blocking > 0 {
				return &conflictError{count: report.Blocking}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.surfaceSuperseded, "surface-superseded", false, "report redundant proposed ops as pre-resolved conflicts")
	cmd.Flags().BoolVar(&opts.failOnConflict, "fail-on-conflict", false, "exit with status 2 when blocking conflicts remain")
	return cmd
}

func nonNil(ops []patch.Op) []patch.Op {
	if ops == nil {
		return []patch.Op{}
	}
	return ops
}
