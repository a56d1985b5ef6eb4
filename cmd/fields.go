package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// fields prints the loaded destination field catalog.
var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Print the destination field catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initMapping()
		if err != nil {
			return err
		}

		ids := env.Catalog.IDs()
		sort.Ints(ids)
		for _, id := range ids {
			f, _ := env.Catalog.Lookup(id)
			fmt.Printf("%4d  %-35s %s\n", id, f.Label, f.Type)
		}
		fmt.Printf("\n%d fields\n", env.Catalog.Len())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fieldsCmd)
}
