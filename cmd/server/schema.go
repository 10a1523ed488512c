package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/hongminglow/aria-characters/internal/characters"
)

// NewSchemaCmd creates the schema subcommand.
func NewSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the character sheet JSON Schema",
		Long:  `Print the JSON Schema that character payloads are validated against.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := characters.GenerateSchema()
			if err != nil {
				return oops.Code("SCHEMA_GENERATION_FAILED").Wrap(err)
			}
			cmd.Println(string(data))
			return nil
		},
	}
}
