package main

import (
	"github.com/autom8ter/docq"
	"github.com/spf13/cobra"
)

func describeCmd() *cobra.Command {
	var (
		fragment string
		tmpl     string
	)
	cmd := &cobra.Command{
		Use:   "describe",
		Short: "describe a query fragment as (path, operator, value) triples",
		RunE: func(cmd *cobra.Command, _ []string) error {
			content, err := readInput(cmd.InOrStdin(), fragment)
			if err != nil {
				return err
			}
			f, err := docq.ParseFragment(content)
			if err != nil {
				return err
			}
			alternatives, err := docq.DescribeAlternatives(f)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), tmpl, alternatives)
		},
	}
	cmd.Flags().StringVarP(&fragment, "fragment", "f", "-", "path to a fragment (yaml or json), '-' reads stdin")
	cmd.Flags().StringVarP(&tmpl, "template", "t", "", "go template (with sprig functions) used to render the output")
	return cmd
}
