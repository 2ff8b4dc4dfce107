package ui

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// Table renders header and rows as a bordered table
func Table(w io.Writer, header []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)

	cells := make([]any, len(header))
	for i, h := range header {
		cells[i] = h
	}
	table.Header(cells...)

	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}
