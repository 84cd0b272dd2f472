package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	enc "github.com/commonpurse/commonpurse/internal/encoding"
)

// columnAliases lists accepted header names per column, lower-cased.
var columnAliases = map[string][]string{
	"wallet": {"wallet_address", "wallet", "address", "walletaddress"},
	"name":   {"name", "display_name", "nome"},
	"role":   {"role", "type"},
}

// Parsed is the outcome of reading a roster file.
type Parsed struct {
	Charset enc.Charset
	Entries []Entry
	Invalid []RowError
}

// Parse reads a roster CSV in any common encoding. The first row naming a
// wallet column is the header; rows before it are ignored.
func Parse(r io.Reader) (*Parsed, error) {
	utf8r, charset, err := enc.NewUTF8Reader(r)
	if err != nil {
		return nil, fmt.Errorf("detect encoding: %w", err)
	}

	raw, err := io.ReadAll(utf8r)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}

	reader := csv.NewReader(strings.NewReader(string(raw)))
	reader.Comma = detectDelimiter(string(raw))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	rows, lines, err := readRows(reader)
	if err != nil {
		return nil, err
	}

	cols, headerIdx := detectHeader(rows)
	if headerIdx < 0 {
		return nil, fmt.Errorf("no header found: expected a wallet_address column")
	}

	out := &Parsed{Charset: charset}
	seen := make(map[string]int)

	for i, row := range rows[headerIdx+1:] {
		line := lines[headerIdx+1+i]

		wallet := cell(row, cols, "wallet")
		if wallet == "" {
			if isBlank(row) {
				continue
			}

			out.Invalid = append(out.Invalid, RowError{Line: line, Message: "missing wallet address"})

			continue
		}

		role, err := parseRole(cell(row, cols, "role"))
		if err != nil {
			out.Invalid = append(out.Invalid, RowError{Line: line, Message: err.Error()})
			continue
		}

		key := string(role) + "|" + wallet
		if prev, ok := seen[key]; ok {
			out.Invalid = append(out.Invalid, RowError{
				Line:    line,
				Message: fmt.Sprintf("duplicate of line %d", prev),
			})

			continue
		}

		seen[key] = line

		out.Entries = append(out.Entries, Entry{
			Line:          line,
			WalletAddress: wallet,
			Name:          cell(row, cols, "name"),
			Role:          role,
		})
	}

	return out, nil
}

// readRows returns each record with its line in the file; the csv reader
// drops empty lines, so indexes alone do not give line numbers.
func readRows(reader *csv.Reader) ([][]string, []int, error) {
	var (
		rows  [][]string
		lines []int
	)

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return rows, lines, nil
		}

		if err != nil {
			return nil, nil, fmt.Errorf("read csv: %w", err)
		}

		line, _ := reader.FieldPos(0)
		rows = append(rows, row)
		lines = append(lines, line)
	}
}

// detectDelimiter picks the most frequent candidate on the first line.
func detectDelimiter(content string) rune {
	first, _, _ := strings.Cut(content, "\n")

	best, bestCount := ',', 0

	for _, c := range []rune{',', ';', '\t'} {
		if n := strings.Count(first, string(c)); n > bestCount {
			best, bestCount = c, n
		}
	}

	return best
}

func detectHeader(rows [][]string) (map[string]int, int) {
	for rowIdx, row := range rows {
		cols := make(map[string]int)

		for i, c := range row {
			name := strings.ToLower(strings.TrimSpace(c))

			for col, aliases := range columnAliases {
				for _, alias := range aliases {
					if name == alias {
						cols[col] = i
					}
				}
			}
		}

		if _, ok := cols["wallet"]; ok {
			return cols, rowIdx
		}
	}

	return nil, -1
}

func cell(row []string, cols map[string]int, col string) string {
	idx, ok := cols[col]
	if !ok || idx >= len(row) {
		return ""
	}

	return strings.TrimSpace(row[idx])
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}

	return true
}
