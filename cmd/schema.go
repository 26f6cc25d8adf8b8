package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/jaypierce/moos-ivp-agent/bridge"
)

func SchemaCommand() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Write the JSON schemas of the bridge messages",
		Long: "Writes instruction.schema.json and snapshot.schema.json for implementers of the " +
			"simulator side of the bridge. Without --out both schemas are printed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			schemas := []struct {
				name   string
				schema *jsonschema.Schema
			}{
				{"instruction.schema.json", bridge.InstructionSchema()},
				{"snapshot.schema.json", bridge.SnapshotSchema()},
			}
			for _, s := range schemas {
				if outDir == "" {
					data, err := json.MarshalIndent(s.schema, "", "  ")
					if err != nil {
						return fmt.Errorf("marshal schema: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\n", data)
					continue
				}
				outPath := filepath.Join(outDir, s.name)
				if err := writeSchema(outPath, s.schema); err != nil {
					return err
				}
				logger.Info("wrote schema", "path", outPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "Directory to write the schemas to")
	return cmd
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}
	return nil
}
