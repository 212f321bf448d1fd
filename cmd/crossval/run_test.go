package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleReport = `{"documents": [
	{"name": "nfe.xml", "status": "success", "data": [
		{"ncm": "84715010", "cfop": "5102", "emitente_cnpj": "11111111000111",
		 "destinatario_cnpj": "22222222000122", "data_emissao": "2024-03-15",
		 "produto_nome": "Notebook", "valor_total": 1000, "quantidade": 2}
	]},
	{"name": "planilha.csv", "status": "success", "data": [
		{"ncm": "84715010", "cfop": "5102", "emitente_cnpj": "11111111000111",
		 "destinatario_cnpj": "22222222000122", "data_emissao": "2024-03-15",
		 "produto_nome": "Notebook", "valor_total": 900, "quantidade": 2}
	]}
]}`

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"PORT", "DATABASE_URL", "JWT_SECRET", "ARTIFACT_DIR", "ARTIFACT_STORE", "CROSSVAL_WORKERS"} {
		t.Setenv(key, "")
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeReport(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "report.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write report: %v", err)
	}
	return path
}

func TestRunCommand(t *testing.T) {
	clearEnv(t)
	input := writeReport(t, sampleReport)
	outDir := t.TempDir()

	out, err := execute(t, "run", "--input", input, "--run-id", "cli-run", "--out", outDir, "--quiet")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !strings.Contains(out, "DET_VALOR_TOTAL_ITEM") {
		t.Errorf("expected the finding in the summary, got:\n%s", out)
	}
	if strings.Contains(out, "DET_QUANTIDADE") {
		t.Errorf("equal quantities must not be reported, got:\n%s", out)
	}

	for _, ext := range []string{"json", "csv", "md"} {
		name := filepath.Join(outDir, "cli-run", "deterministic-cross-validation-cli-run."+ext)
		if _, err := os.Stat(name); err != nil {
			t.Errorf("expected artifact %s: %v", name, err)
		}
	}
}

func TestRunCommand_NoFindings(t *testing.T) {
	clearEnv(t)
	input := writeReport(t, `{"documents": [{"name": "only.xml", "status": "success", "data": [{"ncm": "1", "valor_total": 5}]}]}`)

	out, err := execute(t, "run", "--input", input, "--run-id", "solo", "--out", t.TempDir(), "--quiet")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(out, "no material inconsistencies found") {
		t.Errorf("expected the empty-run message, got:\n%s", out)
	}
}

func TestRunCommand_Errors(t *testing.T) {
	clearEnv(t)
	valid := writeReport(t, sampleReport)

	tests := []struct {
		name string
		args []string
	}{
		{"missing input flag", []string{"run"}},
		{"unreadable input", []string{"run", "--input", filepath.Join(t.TempDir(), "missing.json"), "--quiet"}},
		{"malformed input", []string{"run", "--input", writeReport(t, `{"documents": [`), "--quiet"}},
		{"no documents field", []string{"run", "--input", writeReport(t, `{}`), "--quiet"}},
		{"invalid run id", []string{"run", "--input", valid, "--run-id", "../escape", "--out", t.TempDir(), "--quiet"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(out, "Version:") {
		t.Errorf("unexpected version output:\n%s", out)
	}
}
