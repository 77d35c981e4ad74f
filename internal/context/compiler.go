// Package context builds token-budgeted prompts by assembling
// registered template sections, each backed by a query against the
// Decision Store.
package context

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Priority controls how aggressively a section is dropped when the
// token budget runs tight.
type Priority string

const (
	PriorityRequired  Priority = "required"
	PriorityImportant Priority = "important"
	PriorityOptional  Priority = "optional"
)

// optionalBudgetFraction is the minimum remaining-budget ratio below
// which optional sections are omitted outright.
const optionalBudgetFraction = 0.30

// Query describes a read against the Decision Store: a table name plus
// an AND-ed filter map. A []interface{} filter value becomes an IN
// clause. Rows are ordered by creation time ascending.
type Query struct {
	Table   string
	Filters map[string]interface{}
}

// Row is a single result row, keyed by column name.
type Row map[string]interface{}

// FormatFunc renders a slice of rows into prompt text.
type FormatFunc func(rows []Row) string

// Section is one named, prioritized piece of a compiled prompt.
type Section struct {
	Name     string
	Priority Priority
	Query    Query
	Format   FormatFunc
}

// SectionResult reports what happened to one section during assembly.
type SectionResult struct {
	Name      string
	Priority  Priority
	Tokens    int
	Included  bool
	Truncated bool
}

// Descriptor is one compile request: a task type's registered sections
// plus the token budget for this call.
type Descriptor struct {
	TaskType    string
	Sections    []Section
	TokenBudget int
}

// Result is the compiled prompt plus bookkeeping about what was
// included, truncated, or dropped.
type Result struct {
	Prompt     string
	TokenCount int
	Sections   []SectionResult
	Truncated  bool
}

// Compiler assembles prompts by running each section's Query against
// the underlying SQL store.
type Compiler struct {
	db *sql.DB
}

// New creates a Compiler bound to the Decision Store's database.
func New(db *sql.DB) *Compiler {
	return &Compiler{db: db}
}

// Compile runs the assembly algorithm: required sections always
// included (their tokens still count against budget), important
// sections included as-is or truncated to fit, optional sections
// included only when more than 30% of the original budget remains.
func (c *Compiler) Compile(d Descriptor) (*Result, error) {
	ordered := orderedSections(d.Sections)

	remaining := d.TokenBudget
	original := d.TokenBudget
	var parts []string
	var results []SectionResult
	truncatedAny := false

	for _, sec := range ordered {
		rows, err := c.runQuery(sec.Query)
		if err != nil {
			return nil, fmt.Errorf("section %s: query: %w", sec.Name, err)
		}
		text := sec.Format(rows)
		tokens := CountTokens(text)

		switch sec.Priority {
		case PriorityRequired:
			parts = append(parts, text)
			remaining -= tokens
			results = append(results, SectionResult{Name: sec.Name, Priority: sec.Priority, Tokens: tokens, Included: true})

		case PriorityImportant:
			if tokens <= remaining {
				parts = append(parts, text)
				remaining -= tokens
				results = append(results, SectionResult{Name: sec.Name, Priority: sec.Priority, Tokens: tokens, Included: true})
			} else if remaining > 0 {
				truncated := Truncate(text, remaining)
				truncTokens := CountTokens(truncated)
				parts = append(parts, truncated)
				remaining -= truncTokens
				truncatedAny = true
				results = append(results, SectionResult{Name: sec.Name, Priority: sec.Priority, Tokens: truncTokens, Included: true, Truncated: true})
			} else {
				truncatedAny = true
				results = append(results, SectionResult{Name: sec.Name, Priority: sec.Priority, Tokens: tokens, Included: false, Truncated: true})
			}

		case PriorityOptional:
			ratio := 0.0
			if original > 0 {
				ratio = float64(remaining) / float64(original)
			}
			if ratio > optionalBudgetFraction && tokens <= remaining {
				parts = append(parts, text)
				remaining -= tokens
				results = append(results, SectionResult{Name: sec.Name, Priority: sec.Priority, Tokens: tokens, Included: true})
			} else {
				results = append(results, SectionResult{Name: sec.Name, Priority: sec.Priority, Tokens: tokens, Included: false})
			}
		}
	}

	prompt := strings.Join(parts, "\n\n")
	return &Result{
		Prompt:     prompt,
		TokenCount: CountTokens(prompt),
		Sections:   results,
		Truncated:  truncatedAny,
	}, nil
}

// orderedSections walks required, then important, then optional, the
// priority order the assembly algorithm depends on; it preserves the
// caller's relative order within a priority tier.
func orderedSections(sections []Section) []Section {
	tier := func(p Priority) int {
		switch p {
		case PriorityRequired:
			return 0
		case PriorityImportant:
			return 1
		default:
			return 2
		}
	}
	out := make([]Section, len(sections))
	copy(out, sections)
	sort.SliceStable(out, func(i, j int) bool { return tier(out[i].Priority) < tier(out[j].Priority) })
	return out
}

// runQuery executes a Query's table+filter read. Filters are AND-ed;
// slice values become IN clauses. Results are ordered by created_at
// ascending.
func (c *Compiler) runQuery(q Query) ([]Row, error) {
	sqlText := fmt.Sprintf("SELECT * FROM %s", quoteIdent(q.Table))
	var args []interface{}
	var conds []string

	// Deterministic filter ordering keeps generated SQL (and therefore
	// query plans/tests) stable across runs.
	keys := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := q.Filters[k]
		switch vv := v.(type) {
		case []interface{}:
			placeholders := make([]string, len(vv))
			for i, item := range vv {
				placeholders[i] = "?"
				args = append(args, item)
			}
			conds = append(conds, fmt.Sprintf("%s IN (%s)", quoteIdent(k), strings.Join(placeholders, ",")))
		case []string:
			placeholders := make([]string, len(vv))
			for i, item := range vv {
				placeholders[i] = "?"
				args = append(args, item)
			}
			conds = append(conds, fmt.Sprintf("%s IN (%s)", quoteIdent(k), strings.Join(placeholders, ",")))
		default:
			conds = append(conds, fmt.Sprintf("%s = ?", quoteIdent(k)))
			args = append(args, v)
		}
	}

	if len(conds) > 0 {
		sqlText += " WHERE " + strings.Join(conds, " AND ")
	}
	sqlText += " ORDER BY created_at ASC"

	rows, err := c.db.Query(sqlText, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// CountTokens applies the conservative ceil(chars/4) heuristic, scaled
// up 10% when the text contains any triple-backtick marker (source
// does not distinguish an actual fenced code block from an inline
// triple-backtick; this preserves that behavior as-is).
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	base := math.Ceil(float64(len(text)) / 4.0)
	if strings.Contains(text, "```") {
		base *= 1.10
	}
	return int(math.Ceil(base))
}

// Truncate shortens text to roughly budget tokens (budget*4 chars),
// preferring to break at whitespace within the last 50 characters of
// the target cut point, then appends an ellipsis.
func Truncate(text string, budgetTokens int) string {
	targetChars := budgetTokens * 4
	if targetChars <= 0 {
		return ""
	}
	if len(text) <= targetChars {
		return text
	}

	cut := targetChars
	searchStart := cut - 50
	if searchStart < 0 {
		searchStart = 0
	}

	window := text[searchStart:cut]
	if idx := strings.LastIndexAny(window, " \t\n"); idx >= 0 {
		cut = searchStart + idx
	}

	return strings.TrimRight(text[:cut], " \t\n") + "..."
}
