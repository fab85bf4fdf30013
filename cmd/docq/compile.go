package main

import (
	"context"

	"github.com/autom8ter/docq"
	"github.com/spf13/cobra"
)

func compileCmd() *cobra.Command {
	var (
		flags    schemaFlags
		filter   string
		tmpl     string
		describe bool
	)
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "compile a filter document into a query fragment",
		Example: `  docq compile --schema person.yaml --filter filter.yaml
  docq compile --schema person.yaml --filter - --template '{{ .age | toJson }}' < filter.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			compiler, err := flags.load()
			if err != nil {
				return err
			}
			content, err := readInput(cmd.InOrStdin(), filter)
			if err != nil {
				return err
			}
			f, err := docq.ParseFilter(content)
			if err != nil {
				return err
			}
			fragment, err := compiler.Compile(context.Background(), f.Lookups, f.Trees...)
			if err != nil {
				return err
			}
			if describe {
				alternatives, err := docq.DescribeAlternatives(fragment)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), tmpl, alternatives)
			}
			return render(cmd.OutOrStdout(), tmpl, fragment)
		},
	}
	cmd.Flags().StringSliceVarP(&flags.schemas, "schema", "s", nil, "path to a collection schema (yaml or json) - may be repeated")
	cmd.Flags().StringVarP(&flags.collection, "collection", "c", "", "collection to compile against (required with more than one schema)")
	cmd.Flags().StringVar(&flags.config, "config", "", "path to a config file (yaml or json)")
	cmd.Flags().StringVarP(&filter, "filter", "f", "-", "path to a filter document, '-' reads stdin")
	cmd.Flags().StringVarP(&tmpl, "template", "t", "", "go template (with sprig functions) used to render the output")
	cmd.Flags().BoolVar(&describe, "describe", false, "render the compiled fragment as (path, operator, value) triples")
	return cmd
}
