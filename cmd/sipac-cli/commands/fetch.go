package commands

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"sipac-backend/internal/service"
	"sipac-backend/internal/sipac/parsers"

	"github.com/spf13/cobra"
)

var (
	fetchParser string
	fetchMethod string
	fetchData   []string
)

func init() {
	fetchCmd.Flags().StringVarP(&fetchParser, "parser", "p", parsers.DocumentKey, "The parser to extract the page with.")
	fetchCmd.Flags().StringVarP(&fetchMethod, "method", "X", "GET", "The http method, GET or POST.")
	fetchCmd.Flags().StringArrayVarP(&fetchData, "data", "d", nil, "A request parameter as key=value, may be repeated.")
	rootCmd.AddCommand(fetchCmd)
}

// parseData turns key=value pairs into form values.
func parseData(pairs []string) (url.Values, error) {
	values := url.Values{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		values.Add(key, value)
	}
	return values, nil
}

func printJson(cmd *cobra.Command, value any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(value)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <url> [--parser <key>] [-X POST] [-d key=value...]",
	Short: "Fetches a single page with an authenticated session and prints it as JSON.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := parseData(fetchData)
		if err != nil {
			return err
		}
		stack, err := openStack()
		if err != nil {
			return err
		}

		result, err := stack.Service.FetchPage(cmd.Context(), service.PageRequest{
			TargetUrl: args[0],
			Method:    fetchMethod,
			Body:      body,
			Parser:    fetchParser,
		})
		if err != nil {
			return err
		}
		return printJson(cmd, result)
	},
}
