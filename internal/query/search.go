package query

import (
	"regexp"
	"strings"

	"github.com/localnerve/reestrsi/internal/meta"
	"github.com/localnerve/reestrsi/internal/types"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// LikeEscape is the escape character of search patterns. It is not special in any string literal syntax.
const LikeEscape = "!"

var (
	termPattern = regexp.MustCompile(`"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'|\S+`)
	unescaper   = strings.NewReplacer(`\"`, `"`, `\'`, `'`, `\\`, `\`)
	// sqlserver treats [ as a character class
	likeEscaper = strings.NewReplacer(LikeEscape, LikeEscape+LikeEscape, "%", LikeEscape+"%", "_", LikeEscape+"_", "[", LikeEscape+"[")
)

// Fold lowercases s with Russian casing rules. The database LOWER of sqlite is replaced by Fold
// so both sides of a search comparison fold alike.
func Fold(s string) string {
	return cases.Lower(language.Russian).String(s)
}

// Contains builds the LIKE pattern matching term anywhere, with wildcards in term taken literally
func Contains(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}

// Terms splits a search string on whitespace, keeping quoted phrases whole
func Terms(s string) []string {
	matches := termPattern.FindAllString(s, -1)
	terms := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) >= 2 && (m[0] == '"' || m[0] == '\'') && m[len(m)-1] == m[0] {
			m = unescaper.Replace(m[1 : len(m)-1])
		}
		if m != "" {
			terms = append(terms, m)
		}
	}
	return terms
}

// applySearch adds one disjunction per term over every search field
func (q *Query) applySearch(value string) error {
	if len(q.fieldsSearch) == 0 {
		return nil
	}

	columns := make([]string, 0, len(q.fieldsSearch))
	for _, path := range q.fieldsSearch {
		r, err := q.resolve(path)
		if err != nil {
			return err
		}
		if r.target.Field == nil || r.target.Field.Kind != meta.KindString {
			return types.Configf("%s: search field %q is not a text column", q.Descriptor.Name, path)
		}
		columns = append(columns, r.alias+"."+r.target.Field.Name)
	}

	for _, term := range Terms(value) {
		pattern := Contains(Fold(term))
		parts := make([]string, len(columns))
		args := make([]any, len(columns))
		for i, column := range columns {
			parts[i] = "LOWER(" + column + ") LIKE ? ESCAPE '" + LikeEscape + "'"
			args[i] = pattern
		}
		q.addFilter(Predicate{SQL: "(" + strings.Join(parts, " OR ") + ")", Args: args})
	}
	return nil
}
