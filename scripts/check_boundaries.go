package main

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const modulePath = "ideajar"

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

// layerRule lists the import prefixes a layer may use besides the standard
// library. Entries are relative to the bounded-context module unless they
// start with modulePath.
type layerRule struct {
	allowed            []string
	forbidInfraMessage string
}

var layerRules = map[string]layerRule{
	"domain": {
		allowed:            []string{"domain"},
		forbidInfraMessage: "domain import is outside explicit allowlist",
	},
	"ports": {
		allowed:            []string{"domain", modulePath + "/internal/shared"},
		forbidInfraMessage: "ports may only depend on domain and shared event shapes",
	},
	"application": {
		allowed:            []string{"application", "domain", "ports"},
		forbidInfraMessage: "application import is outside explicit allowlist",
	},
}

func main() {
	root := "contexts"
	if len(os.Args) > 1 {
		root = os.Args[1]
	}
	violations := collectViolations(root)
	if len(violations) == 0 {
		fmt.Println("boundary checks passed")
		return
	}

	sort.Slice(violations, func(i, j int) bool {
		if violations[i].File == violations[j].File {
			if violations[i].Line == violations[j].Line {
				return violations[i].Import < violations[j].Import
			}
			return violations[i].Line < violations[j].Line
		}
		return violations[i].File < violations[j].File
	})

	fmt.Println("boundary violations found:")
	for _, v := range violations {
		fmt.Printf("- %s:%d imports %q (%s)\n", v.File, v.Line, v.Import, v.Rule)
	}
	os.Exit(1)
}

func collectViolations(root string) []violation {
	var violations []violation

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		normalized := filepath.ToSlash(path)
		parts := strings.Split(normalized, "/")
		if len(parts) < 4 || parts[0] != "contexts" {
			return nil
		}

		modulePrefix := fmt.Sprintf("%s/contexts/%s/%s", modulePath, parts[1], parts[2])
		violations = append(violations, validateFile(path, normalized, parts[3], modulePrefix)...)
		return nil
	})

	return violations
}

func validateFile(path string, normalizedPath string, layer string, modulePrefix string) []violation {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return []violation{{File: normalizedPath, Line: 1, Rule: "file must parse"}}
	}

	var violations []violation
	for _, imp := range file.Imports {
		importPath := strings.Trim(imp.Path.Value, "\"")
		line := fset.Position(imp.Pos()).Line
		report := func(rule string) {
			violations = append(violations, violation{File: normalizedPath, Line: line, Import: importPath, Rule: rule})
		}

		if hasPrefix(importPath, modulePath+"/contexts") && !hasPrefix(importPath, modulePrefix) {
			report("cross-module imports are forbidden")
		}

		rule, ok := layerRules[layer]
		if !ok {
			continue
		}
		if strings.Contains(importPath, "/adapters/") {
			report(layer + " must not import adapters")
		}
		if hasPrefix(importPath, modulePath+"/internal/platform") || hasPrefix(importPath, modulePath+"/internal/app") {
			report(layer + " must not import runtime infrastructure")
		}
		if isStdlib(importPath) {
			continue
		}
		if !isAllowed(importPath, resolveAllowed(rule.allowed, modulePrefix)) {
			report(rule.forbidInfraMessage)
		}
	}
	return violations
}

func resolveAllowed(entries []string, modulePrefix string) []string {
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if hasPrefix(entry, modulePath) {
			out = append(out, entry)
			continue
		}
		out = append(out, modulePrefix+"/"+entry)
	}
	return out
}

func hasPrefix(path string, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func isAllowed(importPath string, allowedPrefixes []string) bool {
	for _, p := range allowedPrefixes {
		if hasPrefix(importPath, p) {
			return true
		}
	}
	return false
}

func isStdlib(importPath string) bool {
	if hasPrefix(importPath, modulePath) {
		return false
	}
	first := importPath
	if idx := strings.Index(first, "/"); idx != -1 {
		first = first[:idx]
	}
	return !strings.Contains(first, ".")
}
