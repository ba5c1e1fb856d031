package db

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
)

func readSource(name string) (string, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Postgres reads "name" as a column identifier, so jsonb_build_object keys
// must be single-quoted literals.
func TestJsonbBuildObjectQuoting(t *testing.T) {
	doubleQuotedKey := regexp.MustCompile(`"\w+"\s*,\s*\w+`)
	files, err := filepath.Glob("*.go")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	for _, file := range files {
		if strings.HasSuffix(file, "_test.go") {
			continue
		}
		content, err := readSource(file)
		if err != nil {
			t.Fatalf("read %s: %v", file, err)
		}
		for _, part := range strings.Split(content, "jsonb_build_object(")[1:] {
			end := closingParen(part)
			if end < 0 {
				continue
			}
			if block := part[:end]; doubleQuotedKey.MatchString(block) {
				t.Errorf("%s: jsonb_build_object uses a double-quoted key:\n%s", file, block)
			}
		}
	}
}

// Every positional placeholder in a statement must have a matching argument
// slot; gaps usually mean a column was dropped from the VALUES list.
func TestPlaceholdersAreContiguous(t *testing.T) {
	placeholder := regexp.MustCompile(`\$(\d+)`)
	for _, file := range []string{"incidents.go", "approvals.go", "audit.go"} {
		content, err := readSource(file)
		if err != nil {
			t.Fatalf("read %s: %v", file, err)
		}
		for _, stmt := range strings.Split(content, "`") {
			if !strings.Contains(stmt, "INSERT INTO") {
				continue
			}
			seen := map[string]bool{}
			for _, m := range placeholder.FindAllStringSubmatch(stmt, -1) {
				seen[m[1]] = true
			}
			for i := 1; i <= len(seen); i++ {
				if !seen[strconv.Itoa(i)] {
					t.Errorf("%s: placeholder $%d missing in:\n%s", file, i, stmt)
				}
			}
		}
	}
}

func closingParen(s string) int {
	depth := 1
	for j := 0; j < len(s); j++ {
		switch s[j] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}
