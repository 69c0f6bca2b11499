// Package sqlite provides dependency boundary tests for the sqlite persistence backend.
package sqlite

import (
	"testing"

	"fishercore/testutil"
)

func TestImportsAreDomainMemoryOrStdlib(t *testing.T) {
	forbidden := testutil.ModuleImportOutside("fishercore", "fishercore/pkg/domain", "fishercore/internal/infra/persistence/memory")
	testutil.AssertNoDirectImports(t, ".", forbidden, "sqlite store builds on the memory store and domain only")
}
