package blob

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// infraBoundary restricts who may import packages under infra.
type infraBoundary struct {
	infra   string
	owners  []string
	message string
}

var infraBoundaries = []infraBoundary{
	{
		infra:   "fishercore/internal/infra/blob",
		owners:  []string{"fishercore/internal/blob"},
		message: "blob backends are reached through blob.Open",
	},
	{
		infra:   "fishercore/internal/infra/persistence",
		owners:  []string{"fishercore/internal/core"},
		message: "fisher stores are opened by core.OpenPersistentStore",
	},
}

// TestInfraImportsStayBehindFacades loads the whole module and checks that
// backend packages are only imported by their facade (or by each other).
func TestInfraImportsStayBehindFacades(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "fishercore/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	var violations []string
	for _, b := range infraBoundaries {
		seen := make(map[string]struct{})
		for _, pkg := range pkgs {
			if underPrefix(pkg.PkgPath, b.infra) || b.owns(pkg.PkgPath) {
				continue
			}
			for importPath := range pkg.Imports {
				if underPrefix(importPath, b.infra) {
					seen[pkg.PkgPath+" imports "+importPath+" ("+b.message+")"] = struct{}{}
				}
			}
		}
		for v := range seen {
			violations = append(violations, v)
		}
	}
	if len(violations) == 0 {
		return
	}
	sort.Strings(violations)
	for _, v := range violations {
		t.Errorf("%s", v)
	}
	t.Fatalf("found %d imports crossing an infra boundary", len(violations))
}

func (b infraBoundary) owns(pkgPath string) bool {
	// External test packages carry a _test suffix.
	pkgPath = strings.TrimSuffix(pkgPath, "_test")
	for _, owner := range b.owners {
		if pkgPath == owner {
			return true
		}
	}
	return false
}

func underPrefix(importPath, prefix string) bool {
	return importPath == prefix || strings.HasPrefix(importPath, prefix+"/")
}
