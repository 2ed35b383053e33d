package tables

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
)

const maxTableNameLen = 64

var (
	// keywordNames are replaced in this order before anything else.
	keywordNames = [][2]string{
		{"财报", "financial_report"},
		{"财务", "financial"},
		{"数据", "data"},
		{"资料", "data"},
		{"QA", "qa"},
		{"问答", "qa"},
	}
	firstYear    = regexp.MustCompile(`\d{4}`)
	nonIdentRune = regexp.MustCompile(`[^a-zA-Z0-9_]`)
)

// BaseTableName derives the relational table name the ingestion pipeline
// gives a spreadsheet, before any content-hash suffix is appended.
// Everything after the first dot of filename is ignored.
func BaseTableName(filename string) string {
	name, _, _ := strings.Cut(filename, ".")
	for _, kw := range keywordNames {
		name = strings.ReplaceAll(name, kw[0], kw[1])
	}

	year := firstYear.FindString(name)
	company := name
	if year != "" {
		company = name[:strings.Index(name, year)]
	}
	company = nonIdentRune.ReplaceAllString(strings.TrimSpace(company), "_")
	company = underscores.ReplaceAllString(company, "_")
	company = strings.ToLower(strings.Trim(company, "_"))
	if company != "" && company[0] >= '0' && company[0] <= '9' {
		company = "company_" + company
	}

	var table string
	switch {
	case company != "" && year != "":
		table = company + "_" + year
	case company != "":
		table = company
	case year != "":
		table = "financial_report_" + year
	default:
		table = "table"
	}

	if len(table) > maxTableNameLen {
		sum := md5.Sum([]byte(filename))
		table = strings.TrimRight(table[:20], "_") + "_" + hex.EncodeToString(sum[:])[:8]
	}
	return table
}
