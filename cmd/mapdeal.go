package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/dealsync/internal/deal"
	"github.com/sells-group/dealsync/internal/mapping"
)

var mapdealValidate bool

// mapdeal builds the destination record from a saved webhook payload
// without writing anywhere. Used to inspect what a delivery would sync.
var mapdealCmd = &cobra.Command{
	Use:   "mapdeal <payload.json>",
	Short: "Map a saved webhook payload and print the built record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initMapping()
		if err != nil {
			return err
		}

		body, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "read payload file")
		}

		doc, err := deal.Parse(body)
		if err != nil {
			return err
		}
		if err := doc.Accept(); err != nil {
			return err
		}

		record, warnings, err := env.Builder.Build(doc)
		if err != nil {
			return err
		}

		ids := make([]int, 0, len(record))
		for id := range record {
			ids = append(ids, id)
		}
		sort.Ints(ids)

		for _, id := range ids {
			fv := record[id]
			value, _ := json.Marshal(fv.Value)
			fmt.Printf("%4d  %-30s %s\n", id, fv.Comment, value)
		}
		fmt.Printf("\n%d fields mapped, %d warnings\n", len(record), len(warnings))
		for _, w := range warnings {
			fmt.Printf("warning: field %d (%s): %s\n", w.FieldID, w.Label, w.Message)
		}

		if mapdealValidate {
			problems, vwarnings := mapping.Validate(record, env.Catalog)
			for _, p := range problems {
				fmt.Printf("error: %s\n", p)
			}
			for _, w := range vwarnings {
				fmt.Printf("warning: field %d (%s): %s\n", w.FieldID, w.Label, w.Message)
			}
			if len(problems) > 0 {
				return eris.Errorf("record failed validation with %d errors", len(problems))
			}
			fmt.Println("record passed validation")
		}

		return nil
	},
}

func init() {
	mapdealCmd.Flags().BoolVar(&mapdealValidate, "validate", false, "validate the built record against the catalog")
	rootCmd.AddCommand(mapdealCmd)
}
