package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/causeway-data/causeway/display"
	"github.com/causeway-data/causeway/manifest"
	"github.com/causeway-data/causeway/schema"
)

// TypesCmd represents the types command
var TypesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the declared data types",
	Long: `List the data types the manifest declares.

For each type the listing shows the required columns, the user-annotated
columns, the row key, declared column kinds, the artifact filename pattern,
and which hub nodes host it.

Examples:
  causeway types           # List every declared type
  causeway types --json    # Machine-readable listing`,
	RunE: runTypes,
}

func init() {
	TypesCmd.Flags().Bool("json", false, "Output results as JSON")
}

// typeSummary is one declared data type in listing form.
type typeSummary struct {
	Name             string            `json:"name"`
	RequiredColumns  []string          `json:"required_columns"`
	AnnotatedColumns []string          `json:"annotated_columns,omitempty"`
	RowKey           []string          `json:"row_key"`
	Kinds            map[string]string `json:"kinds,omitempty"`
	FilenamePattern  string            `json:"filename_pattern"`
	AnnotationPolicy string            `json:"annotation_policy,omitempty"`
	HostedBy         []string          `json:"hosted_by"`
}

func runTypes(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	bundle, err := manifest.Load(cfg.Paths.Manifest)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}

	summaries := make([]typeSummary, 0, len(bundle.Registry.Types()))
	for _, def := range bundle.Registry.Types() {
		summaries = append(summaries, summarizeType(bundle, def))
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(summaries)
	}

	if len(summaries) == 0 {
		pterm.Warning.Println("The manifest declares no data types")
		return nil
	}

	pterm.Info.Printf("%d data types declared\n", len(summaries))
	for _, s := range summaries {
		fmt.Println()
		fmt.Println(s.Name)
		fmt.Printf("  Required columns:  %s\n", strings.Join(s.RequiredColumns, ", "))
		if len(s.AnnotatedColumns) > 0 {
			fmt.Printf("  Annotated columns: %s\n", strings.Join(s.AnnotatedColumns, ", "))
		}
		fmt.Printf("  Row key:           %s\n", strings.Join(s.RowKey, ", "))
		for _, col := range sortedKeys(s.Kinds) {
			fmt.Printf("  Kind:              %s is %s\n", col, s.Kinds[col])
		}
		fmt.Printf("  Filename pattern:  %s\n", s.FilenamePattern)
		if s.AnnotationPolicy != "" {
			fmt.Printf("  Annotation policy: %s\n", s.AnnotationPolicy)
		}
		if len(s.HostedBy) > 0 {
			fmt.Printf("  Hosted by:         %s\n", strings.Join(s.HostedBy, ", "))
		} else {
			fmt.Printf("  Hosted by:         (no hub hosts this type)\n")
		}
	}
	return nil
}

func summarizeType(bundle *manifest.Bundle, def schema.TypeDef) typeSummary {
	s := typeSummary{
		Name:             def.Name,
		RequiredColumns:  def.RequiredColumns,
		AnnotatedColumns: def.AnnotatedColumns,
		RowKey:           def.RowKey,
		FilenamePattern:  def.FilenamePattern.String(),
		AnnotationPolicy: string(def.AnnotationPolicy),
	}
	if len(def.Kinds) > 0 {
		s.Kinds = make(map[string]string, len(def.Kinds))
		for col, kind := range def.Kinds {
			s.Kinds[col] = string(kind)
		}
	}
	for _, node := range bundle.Taxonomy.NodesHosting(def.Name) {
		s.HostedBy = append(s.HostedBy, node.Path())
	}
	return s
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
