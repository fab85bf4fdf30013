package main

import (
	"github.com/spf13/cobra"
)

func resolveCmd() *cobra.Command {
	var (
		flags schemaFlags
		tmpl  string
	)
	cmd := &cobra.Command{
		Use:     "resolve [path...]",
		Short:   "resolve logical field paths into storage paths",
		Example: `  docq resolve --schema person.yaml friend__age pk tags__0`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			compiler, err := flags.load()
			if err != nil {
				return err
			}
			resolved := map[string]string{}
			for _, path := range args {
				fp, err := compiler.Resolve(path)
				if err != nil {
					return err
				}
				resolved[path] = fp.String()
			}
			return render(cmd.OutOrStdout(), tmpl, resolved)
		},
	}
	cmd.Flags().StringSliceVarP(&flags.schemas, "schema", "s", nil, "path to a collection schema (yaml or json) - may be repeated")
	cmd.Flags().StringVarP(&flags.collection, "collection", "c", "", "collection to resolve against (required with more than one schema)")
	cmd.Flags().StringVar(&flags.config, "config", "", "path to a config file (yaml or json)")
	cmd.Flags().StringVarP(&tmpl, "template", "t", "", "go template (with sprig functions) used to render the output")
	return cmd
}
