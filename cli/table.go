package cli

import (
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// maxColumnWidth is the widest a cell is rendered.
const maxColumnWidth = 64

// renderTable writes a borderless, left-aligned table to w. Numeric columns
// listed in rightAlign are aligned to the right.
func renderTable(w io.Writer, header []string, data [][]string, rightAlign ...int) error {
	colAlign := make([]tw.Align, len(header))
	for i := range colAlign {
		colAlign[i] = tw.AlignLeft
	}
	for _, i := range rightAlign {
		if i >= 0 && i < len(colAlign) {
			colAlign[i] = tw.AlignRight
		}
	}

	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewBlueprint(
			tw.Rendition{
				Borders: tw.BorderNone,
				Symbols: tw.NewSymbols(tw.StyleASCII),
				Settings: tw.Settings{
					Lines: tw.Lines{
						ShowHeaderLine: tw.Off,
						ShowFooterLine: tw.Off,
						ShowTop:        tw.Off,
						ShowBottom:     tw.Off,
					},
					Separators: tw.Separators{
						ShowHeader:     tw.Off,
						ShowFooter:     tw.Off,
						BetweenRows:    tw.Off,
						BetweenColumns: tw.Off,
					},
				},
			},
		)),
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
			},
			Row: tw.CellConfig{
				Formatting:   tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:    tw.CellAlignment{Global: tw.AlignLeft, PerColumn: colAlign},
				ColMaxWidths: tw.CellWidth{Global: maxColumnWidth},
			},
		}),
	)

	table.Header(header)
	err := table.Bulk(data)
	if err != nil {
		return err //nolint:wrapcheck // This is wrapped by the caller.
	}

	return table.Render() //nolint:wrapcheck // This is wrapped by the caller.
}
