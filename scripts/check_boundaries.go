package main

import (
	"bufio"
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

// zone is the architectural layer a source file belongs to. service is the
// import path of the owning bounded-context service, empty outside contexts/.
type zone struct {
	layer   string
	service string
}

func main() {
	root := "."
	if len(os.Args) > 1 {
		root = os.Args[1]
	}
	violations, err := check(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "boundary check failed: %v\n", err)
		os.Exit(2)
	}
	if len(violations) == 0 {
		fmt.Println("boundary checks passed")
		return
	}
	fmt.Println("boundary violations found:")
	for _, v := range violations {
		fmt.Printf("- %s:%d imports %q (%s)\n", v.File, v.Line, v.Import, v.Rule)
	}
	os.Exit(1)
}

// check walks the non-test Go files under root's contexts/ and internal/
// trees and reports every import that crosses a layer boundary.
func check(root string) ([]violation, error) {
	module, err := modulePath(filepath.Join(root, "go.mod"))
	if err != nil {
		return nil, err
	}
	var violations []violation
	for _, tree := range []string{"contexts", "internal"} {
		err := filepath.WalkDir(filepath.Join(root, tree), func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			found, err := checkFile(path, filepath.ToSlash(rel), module)
			if err != nil {
				return err
			}
			violations = append(violations, found...)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Slice(violations, func(i, j int) bool {
		if violations[i].File != violations[j].File {
			return violations[i].File < violations[j].File
		}
		return violations[i].Line < violations[j].Line
	})
	return violations, nil
}

func checkFile(path string, rel string, module string) ([]violation, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rel, err)
	}
	z := classify(rel, module)
	var violations []violation
	for _, imp := range file.Imports {
		importPath := strings.Trim(imp.Path.Value, `"`)
		for _, rule := range rulesFor(z, importPath, module) {
			violations = append(violations, violation{
				File:   rel,
				Line:   fset.Position(imp.Pos()).Line,
				Import: importPath,
				Rule:   rule,
			})
		}
	}
	return violations, nil
}

func classify(rel string, module string) zone {
	parts := strings.Split(rel, "/")
	switch {
	case parts[0] == "contexts" && len(parts) >= 4:
		service := module + "/" + strings.Join(parts[:3], "/")
		if len(parts) == 4 {
			return zone{layer: "service-root", service: service}
		}
		return zone{layer: parts[3], service: service}
	case parts[0] == "internal" && len(parts) >= 3:
		return zone{layer: parts[1]}
	default:
		return zone{layer: "other"}
	}
}

func rulesFor(z zone, importPath string, module string) []string {
	var rules []string
	if hasPrefix(importPath, "gonum.org/v1/gonum") && z.layer != "domain" {
		rules = append(rules, "gonum is reserved for domain math")
	}
	contexts := module + "/contexts"
	if z.service != "" && hasPrefix(importPath, contexts) && !hasPrefix(importPath, z.service) {
		rules = append(rules, "services must not import other services")
	}

	own := func(layer string) string { return z.service + "/" + layer }
	switch z.layer {
	case "domain":
		if !isStdlib(importPath, module) && !isAllowed(importPath, own("domain"), "gonum.org/v1/gonum") {
			rules = append(rules, "domain imports only stdlib, domain and gonum")
		}
	case "ports":
		if !isStdlib(importPath, module) && !isAllowed(importPath, own("domain"), own("ports"), module+"/internal/shared") {
			rules = append(rules, "ports import only domain and shared contracts")
		}
	case "application":
		if hasPrefix(importPath, own("adapters")) {
			rules = append(rules, "application must not import adapters")
		} else if !isStdlib(importPath, module) && !isAllowed(importPath, own("application"), own("domain"), own("ports")) {
			rules = append(rules, "application imports only application, domain and ports")
		}
	case "transport":
		if !isStdlib(importPath, module) && !isAllowed(importPath, own("transport")) {
			rules = append(rules, "transport DTOs import only stdlib")
		}
	case "adapters":
		if isAllowed(importPath, module+"/internal/platform", module+"/internal/app") {
			rules = append(rules, "adapters must not import process wiring")
		}
	case "shared":
		if hasPrefix(importPath, module) && !hasPrefix(importPath, module+"/internal/shared") {
			rules = append(rules, "shared contracts must not import project packages")
		}
	case "platform":
		if hasPrefix(importPath, module+"/internal/app") {
			rules = append(rules, "platform must not import the composition root")
		}
		if hasPrefix(importPath, contexts) && strings.Contains(importPath, "/adapters/") {
			rules = append(rules, "platform must not import service adapters")
		}
	}
	return rules
}

func modulePath(goMod string) (string, error) {
	f, err := os.Open(goMod)
	if err != nil {
		return "", err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if name, ok := strings.CutPrefix(line, "module "); ok {
			return strings.Trim(strings.TrimSpace(name), `"`), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("%s has no module directive", goMod)
}

func hasPrefix(path string, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func isAllowed(importPath string, allowedPrefixes ...string) bool {
	for _, p := range allowedPrefixes {
		if hasPrefix(importPath, p) {
			return true
		}
	}
	return false
}

func isStdlib(importPath string, module string) bool {
	if hasPrefix(importPath, module) {
		return false
	}
	first, _, _ := strings.Cut(importPath, "/")
	return !strings.Contains(first, ".")
}
