package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRepositoryRespectsLayerBoundaries(t *testing.T) {
	violations, err := check("..")
	if err != nil {
		t.Fatalf("check repository: %v", err)
	}
	for _, v := range violations {
		t.Errorf("%s:%d imports %q (%s)", v.File, v.Line, v.Import, v.Rule)
	}
}

func writeSource(t *testing.T, root string, rel string, imports ...string) {
	t.Helper()
	var b strings.Builder
	b.WriteString("package sample\n\nimport (\n")
	for _, imp := range imports {
		b.WriteString("\t_ \"" + imp + "\"\n")
	}
	b.WriteString(")\n")
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func TestCheckReportsEachBrokenRule(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "go.mod"), []byte("module demo\n\ngo 1.24\n"), 0o600); err != nil {
		t.Fatalf("write go.mod: %v", err)
	}
	svc := "demo/contexts/lab/engine"
	writeSource(t, root, "contexts/lab/engine/domain/model/model.go",
		"math", "gonum.org/v1/gonum/stat/distuv", svc+"/application/commands")
	writeSource(t, root, "contexts/lab/engine/application/commands/cmd.go",
		svc+"/domain/model", svc+"/ports", svc+"/adapters/memory", "gonum.org/v1/gonum/mathext")
	writeSource(t, root, "contexts/lab/engine/application/commands/cmd_test.go",
		svc+"/adapters/memory")
	writeSource(t, root, "contexts/lab/engine/ports/ports.go",
		svc+"/domain/model", "demo/internal/shared/events", "demo/contexts/billing/ledger/domain/money")
	writeSource(t, root, "contexts/lab/engine/adapters/memory/store.go",
		svc+"/ports", "demo/internal/platform/db")
	writeSource(t, root, "internal/shared/events/envelope.go",
		"encoding/json", "demo/internal/platform/db")
	writeSource(t, root, "internal/platform/config/config.go",
		svc+"/application/commands", svc+"/adapters/memory", "demo/internal/app/bootstrap")

	violations, err := check(root)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	got := map[string]bool{}
	for _, v := range violations {
		if strings.HasSuffix(v.File, "_test.go") {
			t.Fatalf("test files must be skipped, got %+v", v)
		}
		got[v.File+" "+v.Import+" "+v.Rule] = true
	}
	want := []string{
		"contexts/lab/engine/domain/model/model.go " + svc + "/application/commands domain imports only stdlib, domain and gonum",
		"contexts/lab/engine/application/commands/cmd.go " + svc + "/adapters/memory application must not import adapters",
		"contexts/lab/engine/application/commands/cmd.go gonum.org/v1/gonum/mathext gonum is reserved for domain math",
		"contexts/lab/engine/application/commands/cmd.go gonum.org/v1/gonum/mathext application imports only application, domain and ports",
		"contexts/lab/engine/ports/ports.go demo/contexts/billing/ledger/domain/money services must not import other services",
		"contexts/lab/engine/ports/ports.go demo/contexts/billing/ledger/domain/money ports import only domain and shared contracts",
		"contexts/lab/engine/adapters/memory/store.go demo/internal/platform/db adapters must not import process wiring",
		"internal/shared/events/envelope.go demo/internal/platform/db shared contracts must not import project packages",
		"internal/platform/config/config.go " + svc + "/adapters/memory platform must not import service adapters",
		"internal/platform/config/config.go demo/internal/app/bootstrap platform must not import the composition root",
	}
	for _, key := range want {
		if !got[key] {
			t.Errorf("missing violation: %s", key)
		}
	}
	if len(violations) != len(want) {
		t.Fatalf("expected %d violations, got %d: %+v", len(want), len(violations), violations)
	}
}

func TestCheckRequiresGoMod(t *testing.T) {
	if _, err := check(t.TempDir()); err == nil {
		t.Fatalf("expected a missing go.mod to fail")
	}
}
