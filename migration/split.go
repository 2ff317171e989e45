package migration

import "strings"

// splitStatements splits a section of SQL into individual statements on
// semicolons. Semicolons inside string literals, quoted identifiers,
// dollar-quoted bodies and comments don't terminate a statement. Statements
// that consist only of comments and whitespace are dropped.
func splitStatements(sql string) []string {
	var (
		stmts   []string
		start   int
		hasCode bool
	)

	flush := func(end int) {
		if hasCode {
			stmts = append(stmts, strings.TrimSpace(sql[start:end]))
		}
		start = end + 1
		hasCode = false
	}

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			if nl := strings.IndexByte(sql[i:], '\n'); nl >= 0 {
				i += nl
			} else {
				i = len(sql)
			}
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			if end := strings.Index(sql[i+2:], "*/"); end >= 0 {
				i += end + 3
			} else {
				i = len(sql)
			}
		case c == '\'' || c == '"':
			hasCode = true
			i = skipQuoted(sql, i, c)
		case c == '$':
			hasCode = true
			if tag, ok := dollarTag(sql[i:]); ok {
				if end := strings.Index(sql[i+len(tag):], tag); end >= 0 {
					i += len(tag) + end + len(tag) - 1
				} else {
					i = len(sql)
				}
			}
		case c == ';':
			flush(i)
		case c != ' ' && c != '\t' && c != '\n' && c != '\r':
			hasCode = true
		}
	}
	if start < len(sql) {
		flush(len(sql))
	}

	return stmts
}

// skipQuoted returns the index of the quote character closing the literal
// that starts at i. Doubled quote characters are escapes.
func skipQuoted(sql string, i int, quote byte) int {
	for j := i + 1; j < len(sql); j++ {
		if sql[j] != quote {
			continue
		}
		if j+1 < len(sql) && sql[j+1] == quote {
			j++
			continue
		}
		return j
	}
	return len(sql)
}

// dollarTag returns the opening tag of a dollar-quoted string ($$ or $tag$)
// at the start of s.
func dollarTag(s string) (string, bool) {
	for j := 1; j < len(s); j++ {
		c := s[j]
		switch {
		case c == '$':
			return s[:j+1], true
		case c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
		case c >= '0' && c <= '9' && j > 1:
		default:
			return "", false
		}
	}
	return "", false
}
