package commands

import (
	"fmt"
	"io"
	"sort"

	"sipac-backend/internal/service"
	"sipac-backend/internal/sipac/paginate"
	"sipac-backend/internal/sipac/parsers"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	listParser    string
	listMethod    string
	listData      []string
	listPageField string
	listJson      bool
)

func init() {
	listCmd.Flags().StringVarP(&listParser, "parser", "p", parsers.TableKey, "The parser to extract every page with.")
	listCmd.Flags().StringVarP(&listMethod, "method", "X", "GET", "The http method, GET or POST.")
	listCmd.Flags().StringArrayVarP(&listData, "data", "d", nil, "A request parameter as key=value, may be repeated.")
	listCmd.Flags().StringVar(&listPageField, "page-field", "", "The parameter carrying the page number.")
	listCmd.Flags().BoolVar(&listJson, "json", false, "Print the result as JSON instead of a table.")
	rootCmd.AddCommand(listCmd)
}

func NewTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(out)
	return t
}

// listColumns prefers the column order reported by the parser, falling back to the
// sorted union of the item keys.
func listColumns(result paginate.ListResult) []string {
	if columns, ok := result.Metadata["columns"].([]string); ok && len(columns) > 0 {
		return columns
	}

	seen := map[string]bool{}
	var columns []string
	for _, item := range result.Data.Items {
		row, ok := item.(map[string]any)
		if !ok {
			continue
		}
		for key := range row {
			if !seen[key] {
				seen[key] = true
				columns = append(columns, key)
			}
		}
	}
	sort.Strings(columns)
	return columns
}

func renderList(out io.Writer, result paginate.ListResult) {
	columns := listColumns(result)

	t := NewTable(out)
	if title, ok := result.Metadata["title"].(string); ok && title != "" {
		t.SetTitle(title)
	}

	header := table.Row{"#"}
	for _, column := range columns {
		header = append(header, column)
	}
	t.AppendHeader(header)

	for i, item := range result.Data.Items {
		row := table.Row{i + 1}
		fields, ok := item.(map[string]any)
		if !ok {
			row = append(row, fmt.Sprint(item))
			t.AppendRow(row)
			continue
		}
		for _, column := range columns {
			value, ok := fields[column]
			if !ok {
				value = ""
			}
			row = append(row, value)
		}
		t.AppendRow(row)
	}

	if p := result.Data.Pagination; p != nil {
		t.AppendFooter(table.Row{
			"",
			fmt.Sprintf("%d items, %d pages", len(result.Data.Items), p.TotalPages),
		})
	}
	t.Render()
}

var listCmd = &cobra.Command{
	Use:   "list <url> [--page-field <name>] [--json]",
	Short: "Fetches every page of a paginated listing and prints the concatenated items.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := parseData(listData)
		if err != nil {
			return err
		}
		stack, err := openStack()
		if err != nil {
			return err
		}

		result, err := stack.Service.FetchPaginatedList(cmd.Context(), service.PageRequest{
			TargetUrl: args[0],
			Method:    listMethod,
			Body:      body,
			Parser:    listParser,
			PageField: listPageField,
		})
		if err != nil {
			return err
		}

		if listJson {
			return printJson(cmd, result)
		}
		renderList(cmd.OutOrStdout(), result)
		return nil
	},
}
