package schema

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// Visualizer renders schemas as console tables
type Visualizer struct {
	useColor bool
}

// NewVisualizer creates a new visualizer
func NewVisualizer(useColor bool) *Visualizer {
	return &Visualizer{useColor: useColor}
}

// DisplayColumns renders a column list. Unmapped types are highlighted.
func (v *Visualizer) DisplayColumns(columns []ColumnSchema) string {
	var buf strings.Builder

	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"#", "Column", "Type", "Mode"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for i, c := range columns {
		typ := string(c.Type)
		if c.Type == TypeUnmapped {
			typ = "<unmapped>"
			if v.useColor {
				typ = color.RedString(typ)
			}
		}
		mode := string(c.Mode)
		if v.useColor && c.IsRequired() {
			mode = color.YellowString(mode)
		}
		table.Append([]string{fmt.Sprintf("%d", i+1), c.Name, typ, mode})
	}

	table.Render()
	return buf.String()
}

// DisplayFieldSpecs renders data dictionary rows next to the type they map to.
func (v *Visualizer) DisplayFieldSpecs(fields []FieldSpec) string {
	var buf strings.Builder

	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Field", "Key", "SAP Type", "Length", "Decimals", "Domain", "Check Table", "Maps To"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, f := range fields {
		mapped := string(MapField(f).Type)
		if mapped == "" {
			mapped = "<unmapped>"
			if v.useColor {
				mapped = color.RedString(mapped)
			}
		}
		table.Append([]string{
			f.FieldName,
			f.KeyFlag,
			f.SAPType,
			fmt.Sprintf("%d", f.Length),
			fmt.Sprintf("%d", f.Decimals),
			f.DomName,
			f.CheckTable,
			mapped,
		})
	}

	table.Render()
	return buf.String()
}

// Summary is a one-line description of a column list.
func (v *Visualizer) Summary(columns []ColumnSchema) string {
	required := 0
	for _, c := range columns {
		if c.IsRequired() {
			required++
		}
	}
	line := fmt.Sprintf("%d columns, %d required", len(columns), required)
	if n := len(Unmapped(columns)); n > 0 {
		warn := fmt.Sprintf(", %d unmapped", n)
		if v.useColor {
			warn = color.RedString(warn)
		}
		line += warn
	}
	return line
}
