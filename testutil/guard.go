// Package testutil holds test helpers that keep the pure report packages free
// of I/O and storage dependencies.
package testutil

import (
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

// Predicate matches forbidden import paths.
type Predicate func(importPath string) bool

// IOImportForbidden matches standard library packages that perform I/O.
func IOImportForbidden(path string) bool {
	switch path {
	case "database/sql", "net", "net/http", "os", "os/exec":
		return true
	}
	return false
}

// DriverImportForbidden matches any package that belongs to a storage or
// cloud driver module.
func DriverImportForbidden(path string) bool {
	return slices.ContainsFunc([]string{
		"github.com/jackc/pgx",
		"github.com/go-sql-driver/mysql",
		"modernc.org/sqlite",
		"github.com/aws/aws-sdk-go-v2",
	}, func(module string) bool {
		return path == module || strings.HasPrefix(path, module+"/")
	})
}

// AssertNoDirectImports fails when a non-test .go file directly in dir
// imports a path matched by forbidden. Build tags are not evaluated.
func AssertNoDirectImports(t testing.TB, dir string, forbidden Predicate, reason string) {
	t.Helper()
	found, err := directImports(dir, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	report(t, "direct import", reason, found)
}

// AssertNoTransitiveDependency fails when `go list -deps pattern` lists a
// package matched by forbidden.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden Predicate, reason string) {
	t.Helper()
	found, err := transitiveDeps(pattern, forbidden)
	if err != nil {
		t.Fatalf("%v", err)
	}
	report(t, "transitive dependency", reason, found)
}

// listDeps is replaced in tests.
var listDeps = func(pattern string) ([]byte, error) {
	return exec.Command("go", "list", "-deps", pattern).CombinedOutput()
}

func transitiveDeps(pattern string, forbidden Predicate) ([]string, error) {
	out, err := listDeps(pattern)
	if err != nil {
		return nil, fmt.Errorf("go list -deps %s: %w\n%s", pattern, err, out)
	}
	var found []string
	for _, pkg := range strings.Fields(string(out)) {
		if forbidden(pkg) {
			found = append(found, pkg)
		}
	}
	return found, nil
}

func directImports(dir string, forbidden Predicate) ([]string, error) {
	names, err := filepath.Glob(filepath.Join(dir, "*.go"))
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var found []string
	for _, name := range names {
		if strings.HasSuffix(name, "_test.go") {
			continue
		}
		if info, err := os.Stat(name); err != nil || info.IsDir() {
			continue
		}
		f, err := parser.ParseFile(fset, name, nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, spec := range f.Imports {
			if path := strings.Trim(spec.Path.Value, `"`); forbidden(path) {
				found = append(found, fmt.Sprintf("%s (in %s)", path, filepath.Base(name)))
			}
		}
	}
	return found, nil
}

type fataler interface {
	Fatalf(format string, args ...any)
}

func report(t fataler, kind, reason string, found []string) {
	if len(found) == 0 {
		return
	}
	t.Fatalf("forbidden %s (%s):\n  %s", kind, reason, strings.Join(found, "\n  "))
}
