package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pkt.systems/sift/schema"
)

func newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "schema",
		Short:        "Validate the schema file and print the effective registry",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfigFile(); err != nil {
				return err
			}
			path := strings.TrimSpace(viper.GetString("schema"))
			if path == "" {
				return fmt.Errorf("schema path required (use --schema)")
			}
			reg, err := schema.LoadFile(path)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "ENTITY\tFIELD\tTYPE\tINDEXED\tSORTABLE\tINDEX NAME")
			for _, entity := range reg.Entities() {
				for _, name := range reg.Fields(entity) {
					field, _ := reg.Field(entity, name)
					indexName := "-"
					if alias, ok := reg.IndexAlias(entity, name); ok {
						indexName = alias
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%v\t%s\n",
						entity, name, field.Type, reg.IsIndexed(entity, name), field.Sortable, indexName)
					for _, sub := range field.SubFields {
						fmt.Fprintf(w, "%s\t%s.%s\t%s\t%v\t%v\t%s\n",
							entity, name, sub.Name, field.Type, sub.Indexed, false, sub.Name)
					}
				}
			}
			return w.Flush()
		},
	}
	return cmd
}
