package migration

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	filenameRx = regexp.MustCompile(`^(\d+)_(.+)\.sql$`)
	markerRx   = regexp.MustCompile(`(?i)^--\s*(?:=+\s*(UP|DOWN)\s*=+|(UP|DOWN)\s*--)$`)
	headerRx   = regexp.MustCompile(`(?i)^--\s*(Migration|Version|Scope)\s*:\s*(.*?)\s*$`)
)

var utf8BOM = []byte("\xef\xbb\xbf")

type section int

const (
	sectionHeader section = iota
	sectionUp
	sectionDown
)

// Parse parses the contents of the migration file at path. The version and
// name are taken from the file name, and the scope from the name of the
// containing directory, unless a Scope header is present.
func Parse(path string, content []byte) (*Migration, error) {
	perr := func(line int, msg string, args ...any) error {
		return ParseError{Path: path, Line: line, Msg: fmt.Sprintf(msg, args...)}
	}

	base := filepath.Base(path)
	match := filenameRx.FindStringSubmatch(base)
	if match == nil {
		return nil, perr(0, "file name must have the form {version}_{name}.sql")
	}
	version, err := strconv.Atoi(match[1])
	if err != nil {
		return nil, ParseError{Path: path, Msg: "invalid version", Err: err}
	}
	if version <= 0 {
		return nil, perr(0, "version must be a positive integer, got %d", version)
	}

	content = bytes.TrimPrefix(content, utf8BOM)
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, perr(0, "file is empty")
	}

	m := &Migration{Version: version, Name: match[2], Path: path}

	var (
		cur        = sectionHeader
		up, down   strings.Builder
		headerVer  string
		headerScp  string
		lineNum    int
		upLine     int
		sc         = bufio.NewScanner(bytes.NewReader(content))
		sectionBuf = map[section]*strings.Builder{sectionUp: &up, sectionDown: &down}
	)
	sc.Buffer(make([]byte, 0, 64*1024), len(content)+1)

	for sc.Scan() {
		lineNum++
		line := sc.Text()
		trimmed := strings.TrimSpace(line)

		if mm := markerRx.FindStringSubmatch(trimmed); mm != nil {
			switch strings.ToUpper(mm[1] + mm[2]) {
			case "UP":
				if cur != sectionHeader {
					return nil, perr(lineNum, "duplicate UP marker")
				}
				cur = sectionUp
				upLine = lineNum
			case "DOWN":
				switch cur {
				case sectionHeader:
					return nil, perr(lineNum, "DOWN marker found before UP marker")
				case sectionDown:
					return nil, perr(lineNum, "duplicate DOWN marker")
				}
				cur = sectionDown
			}
			continue
		}

		if cur == sectionHeader {
			if hm := headerRx.FindStringSubmatch(trimmed); hm != nil {
				switch strings.ToLower(hm[1]) {
				case "migration":
					m.Description = hm[2]
				case "version":
					headerVer = hm[2]
				case "scope":
					headerScp = hm[2]
				}
				continue
			}
			if trimmed != "" && !strings.HasPrefix(trimmed, "--") {
				return nil, perr(lineNum, "SQL found before the UP marker")
			}
			continue
		}

		buf := sectionBuf[cur]
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if err = sc.Err(); err != nil {
		return nil, ParseError{Path: path, Msg: "failed reading file", Err: err}
	}

	if cur == sectionHeader {
		return nil, perr(0, "missing UP marker")
	}

	if headerVer != "" {
		hv, err := strconv.Atoi(headerVer)
		if err != nil || hv != version {
			return nil, perr(0, "Version header '%s' doesn't match file name version %d", headerVer, version)
		}
	}

	if m.Scope, err = resolveScope(filepath.Base(filepath.Dir(path)), headerScp); err != nil {
		return nil, ParseError{Path: path, Msg: "invalid scope", Err: err}
	}

	m.Up = splitStatements(up.String())
	if len(m.Up) == 0 {
		return nil, perr(upLine, "UP section has no statements")
	}
	m.Down = splitStatements(down.String())

	return m, nil
}

func resolveScope(dirName, header string) (Scope, error) {
	dirScope, dirErr := ScopeFromString(dirName)
	if header == "" {
		if dirErr != nil {
			return "", fmt.Errorf("directory '%s' isn't a scope directory and no Scope header is set", dirName)
		}
		return dirScope, nil
	}

	hdrScope, err := ScopeFromString(header)
	if err != nil {
		return "", err
	}
	if dirErr == nil && hdrScope != dirScope {
		return "", fmt.Errorf("scope header '%s' doesn't match directory '%s'", hdrScope, dirScope)
	}

	return hdrScope, nil
}
