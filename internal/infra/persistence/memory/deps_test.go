package memory

import (
	"testing"

	"fishercore/testutil"
)

func TestImportsAreDomainOrStdlib(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.ModuleImportOutside("fishercore", "fishercore/pkg/domain"), "memory store depends on the domain only")
}
