package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestPredicates(t *testing.T) {
	thirdParty := ThirdPartyImportForbidden("synstrength")
	cases := []struct {
		name string
		pred func(string) bool
		in   string
		want bool
	}{
		{"internal", InternalImportForbidden, "synstrength/internal/strength", true},
		{"internal", InternalImportForbidden, "synstrength/pkg/domain", false},
		{"infra", InfraImportForbidden, "synstrength/internal/infra/persistence/sqlite", true},
		{"infra", InfraImportForbidden, "synstrength/internal/schema", false},
		{"third party", thirdParty, "gonum.org/v1/gonum/stat", true},
		{"third party", thirdParty, "synstrength/internal/trace", false},
		{"third party", thirdParty, "encoding/json", false},
		{"any", Any(InfraImportForbidden, thirdParty), "github.com/spf13/cobra", true},
		{"any", Any(InfraImportForbidden, thirdParty), "fmt", false},
	}
	for _, c := range cases {
		if got := c.pred(c.in); got != c.want {
			t.Fatalf("%s(%q)=%v want %v", c.name, c.in, got, c.want)
		}
	}
}

func TestAssertNoDirectImports(t *testing.T) {
	dir := t.TempDir()
	src := []byte("package tmp\nimport \"fmt\"\nfunc X(){fmt.Println(1)}")
	if err := os.WriteFile(filepath.Join(dir, "x.go"), src, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	AssertNoDirectImports(t, dir, func(string) bool { return false }, "none")

	viols, err := directImportViolations(dir, func(p string) bool { return p == "fmt" })
	if err != nil || len(viols) != 1 || viols[0] != "fmt (in x.go)" {
		t.Fatalf("violations %v %v", viols, err)
	}
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestFailIfDirectViolations(t *testing.T) {
	var r recordingFatal
	failIfDirectViolations(&r, "reason", nil)
	if r.msg != "" {
		t.Fatalf("unexpected failure %q", r.msg)
	}
	failIfDirectViolations(&r, "reason", []string{"x (in a.go)"})
	if r.msg == "" {
		t.Fatalf("expected failure")
	}
}
