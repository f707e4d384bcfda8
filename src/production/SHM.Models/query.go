package shmmodels

// Row is one result row keyed by column name
type Row = map[string]interface{}

// ResultSet is the outcome of an ad-hoc SELECT
type ResultSet struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"data"`
}

// Column describes one column of a table
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TableSchema describes one table visible to ad-hoc queries
type TableSchema struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// SQLQueryRequest is the body of the SQL console endpoint
type SQLQueryRequest struct {
	SQL string `json:"sql"`
}
