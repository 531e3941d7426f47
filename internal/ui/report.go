package ui

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"ddbridge/internal/frame"
	"ddbridge/internal/loader"
	"ddbridge/internal/warehouse"
)

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

// RenderChunkReport prints one line per chunk followed by a totals line.
func RenderChunkReport(w io.Writer, report loader.ChunkReport) {
	table := newTable(w, []string{"Chunk", "Rows", "Inserted", "Status", "Errors"})

	for _, c := range report.Chunks {
		status := "ok"
		errText := ""
		if !c.OK() {
			status = "failed"
			errText = c.Errors[0].String()
			if n := len(c.Errors); n > 1 {
				errText += fmt.Sprintf(" (+%d more)", n-1)
			}
		}
		if supportsColor {
			if c.OK() {
				status = color.GreenString(status)
			} else {
				status = color.RedString(status)
			}
		}
		table.Append([]string{
			strconv.Itoa(c.Index),
			fmt.Sprintf("%d-%d", c.Start, c.End),
			strconv.Itoa(c.Inserted),
			status,
			errText,
		})
	}
	table.Render()

	fmt.Fprintf(w, "%d rows inserted, %d of %d chunks failed\n",
		report.Inserted(), len(report.Failed()), len(report.Chunks))
}

// RenderFrame prints up to limit rows of f as a table. A limit of zero
// prints every row.
func RenderFrame(w io.Writer, f *frame.Frame, limit int) {
	table := newTable(w, f.Columns)

	n := f.Len()
	if limit > 0 && n > limit {
		n = limit
	}
	for _, row := range f.Rows[:n] {
		cells := make([]string, len(row))
		for i, v := range row {
			s, err := frame.FormatValue(v)
			if err != nil {
				s = fmt.Sprint(v)
			}
			cells[i] = s
		}
		table.Append(cells)
	}
	table.Render()

	if n < f.Len() {
		fmt.Fprintf(w, "... %d more rows\n", f.Len()-n)
	}
}

// RenderTableInfo prints table metadata as key/value lines.
func RenderTableInfo(w io.Writer, info *warehouse.TableInfo) {
	kind := "table"
	if info.IsView {
		kind = "view"
	}
	table := newTable(w, []string{"Property", "Value"})
	table.AppendBulk([][]string{
		{"Name", info.Ref.String()},
		{"Kind", kind},
		{"Rows", strconv.FormatUint(info.NumRows, 10)},
		{"Bytes", strconv.FormatInt(info.NumBytes, 10)},
		{"Columns", strconv.Itoa(len(info.Schema))},
	})
	table.Render()
}
