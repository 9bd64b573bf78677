// Package emit renders generated assertions as a Go test file.
package emit

import (
	"bytes"
	"go/format"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"github.com/benbjohnson/pathgen"
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Indent prefixes every statement of a test body.
const Indent = "\n\t"

var fileTemplate = template.Must(template.New("file").Parse(`// Code generated by pathgen. DO NOT EDIT.

package {{.module_name}}

import (
{{.all_imports}}
)
{{.all_tests}}`))

// Test is a single generated test function.
type Test struct {
	Name       string
	Statements []string
}

// File is a generated test file.
type File struct {
	Package string
	Imports []string
	Tests   []Test
}

// NewFile returns a file containing one test per assertion.
func NewFile(pkg string, assertions []*pathgen.GeneratedAssertion) *File {
	f := &File{Package: pkg}
	imports := make(map[string]struct{})
	for _, a := range assertions {
		for _, path := range a.Imports() {
			imports[path] = struct{}{}
		}
		f.Tests = append(f.Tests, Test{Name: a.TestName(), Statements: a.Statements})
	}
	f.Imports = maps.Keys(imports)
	slices.Sort(f.Imports)
	return f
}

// Filename returns the name of the generated test file for a package.
func Filename(pkg string) string {
	return pkg + "_pathgen_test.go"
}

// Render returns the formatted source of f.
func Render(f *File) ([]byte, error) {
	imports := make([]string, len(f.Imports))
	for i, path := range f.Imports {
		imports[i] = "\t" + strconv.Quote(path)
	}

	var tests strings.Builder
	for _, t := range f.Tests {
		tests.WriteString("\nfunc " + t.Name + "(t *testing.T) {")
		for _, stmt := range t.Statements {
			tests.WriteString(Indent + stmt)
		}
		tests.WriteString("\n}\n")
	}

	var buf bytes.Buffer
	if err := fileTemplate.Execute(&buf, map[string]string{
		"module_name": f.Package,
		"all_imports": strings.Join(imports, "\n"),
		"all_tests":   tests.String(),
	}); err != nil {
		return nil, errors.Wrap(err, "execute template")
	}

	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, errors.Wrapf(err, "format generated source:\n%s", buf.String())
	}
	return src, nil
}

// WriteFile renders f into dir and returns the path of the written file.
func WriteFile(dir string, f *File) (string, error) {
	src, err := Render(f)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, Filename(f.Package))
	if err := os.WriteFile(path, src, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
