package compile

import (
	"go/token"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// ErrPackageErrors is returned when loaded packages contain errors.
var ErrPackageErrors = errors.New("compile: packages contain errors")

// Package is a loaded package in SSA form.
type Package struct {
	Path string
	Name string
	Dir  string

	Fset *token.FileSet
	SSA  *ssa.Package
}

// Load loads the packages matching patterns relative to dir and builds them
// in SSA form. Only the packages matching patterns are returned.
func Load(dir string, patterns ...string) ([]*Package, error) {
	initial, err := packages.Load(&packages.Config{
		Mode: packages.LoadAllSyntax,
		Dir:  dir,
	}, patterns...)
	if err != nil {
		return nil, errors.Wrap(err, "load packages")
	} else if n := packages.PrintErrors(initial); n > 0 {
		return nil, errors.Wrapf(ErrPackageErrors, "%d error(s)", n)
	}

	// Build program in SSA form.
	prog, pkgs := ssautil.AllPackages(initial, ssa.BuilderMode(0))
	for i, pkg := range pkgs {
		if pkg == nil {
			return nil, errors.Newf("compile: cannot build SSA for package %s", initial[i])
		}
	}
	prog.Build()

	a := make([]*Package, len(initial))
	for i, p := range initial {
		a[i] = &Package{
			Path: p.PkgPath,
			Name: p.Name,
			Fset: prog.Fset,
			SSA:  pkgs[i],
		}
		if len(p.GoFiles) > 0 {
			a[i].Dir = filepath.Dir(p.GoFiles[0])
		}
	}
	return a, nil
}
