package main

import (
	"sort"
	"strings"
	"unicode"
)

var sqlKeywords = []string{
	"SELECT", "FROM", "WHERE", "INSERT", "INTO", "VALUES", "UPDATE",
	"SET", "DELETE", "LIMIT", "ORDER", "BY", "GROUP", "ASC", "DESC",
	"JOIN", "ON", "AS", "AND", "OR", "NOT", "IN", "LIKE", "IS", "NULL",
}

// sqlCompleter suggests keywords, tables and columns from the word before
// the cursor.
type sqlCompleter struct {
	schema  map[string][]string
	tables  []string
	columns []string
}

func newSQLCompleter(schema map[string][]string) *sqlCompleter {
	c := &sqlCompleter{schema: make(map[string][]string, len(schema))}
	seen := map[string]bool{}
	for table, cols := range schema {
		c.schema[strings.ToLower(table)] = cols
		c.tables = append(c.tables, table)
		for _, col := range cols {
			if !seen[col] {
				seen[col] = true
				c.columns = append(c.columns, col)
			}
		}
	}
	sort.Strings(c.tables)
	sort.Strings(c.columns)
	return c
}

// splitLast returns the line up to the word being typed, and that word.
func splitLast(line string) (head, word string) {
	i := strings.LastIndexFunc(line, unicode.IsSpace)
	return line[:i+1], line[i+1:]
}

// candidates lists what may follow head, judged by its last complete word.
func (c *sqlCompleter) candidates(head string) []string {
	words := strings.Fields(head)
	if len(words) == 0 {
		return sqlKeywords
	}

	context := strings.ToUpper(words[len(words)-1])
	switch context {
	case "FROM", "JOIN", "UPDATE", "INTO":
		return c.tables
	case "WHERE", "ON", "AND", "OR", "BY", "SET", "SELECT":
		return append(append([]string{}, c.columns...), sqlKeywords...)
	}
	if cols, ok := c.schema[strings.ToLower(context)]; ok {
		return cols
	}
	return sqlKeywords
}

// Complete returns the candidates that start with the word being typed,
// ignoring case.
func (c *sqlCompleter) Complete(line string) []string {
	head, word := splitLast(line)
	prefix := strings.ToUpper(word)

	var out []string
	seen := map[string]bool{}
	for _, cand := range c.candidates(head) {
		if seen[cand] || !strings.HasPrefix(strings.ToUpper(cand), prefix) {
			continue
		}
		seen[cand] = true
		out = append(out, cand)
	}
	return out
}

// Suggestions returns whole-line completions for a text input that matches
// suggestions against its full value.
func (c *sqlCompleter) Suggestions(line string) []string {
	head, word := splitLast(line)
	if word == "" {
		return nil
	}
	words := c.Complete(line)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w != word {
			out = append(out, head+w)
		}
	}
	return out
}

// Kind labels a suggestion for display.
func (c *sqlCompleter) Kind(word string) string {
	for _, k := range sqlKeywords {
		if strings.EqualFold(k, word) {
			return "keyword"
		}
	}
	if _, ok := c.schema[strings.ToLower(word)]; ok {
		return "table"
	}
	for _, col := range c.columns {
		if col == word {
			return "column"
		}
	}
	return ""
}
