package cli

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/go-test/deep"

	"github.com/emiliopalmerini/mtune/internal/domain"
)

func TestCreateStudy(t *testing.T) {
	storage := testStorage(t)

	out := mustExecute(t, "create-study", "--storage", storage, "--study-name", "resnet")
	if strings.TrimSpace(out) != "resnet" {
		t.Errorf("create-study printed %q", out)
	}

	_, err := execute(t, "create-study", "--storage", storage, "--study-name", "resnet")
	if !errors.Is(err, domain.ErrDuplicatedStudy) {
		t.Errorf("duplicate create-study err = %v", err)
	}

	out = mustExecute(t, "create-study", "--storage", storage, "--study-name", "resnet", "--skip-if-exists")
	if strings.TrimSpace(out) != "resnet" {
		t.Errorf("create-study --skip-if-exists printed %q", out)
	}

	out = mustExecute(t, "create-study", "--storage", storage)
	if !strings.HasPrefix(strings.TrimSpace(out), domain.DefaultStudyNamePrefix) {
		t.Errorf("generated name = %q", out)
	}

	mustExecute(t, "create-study", "--storage", storage, "--study-name", "pareto", "--directions", "minimize,maximize")

	if _, err := execute(t, "create-study", "--storage", storage, "--direction", "sideways"); err == nil {
		t.Error("expected an invalid direction error")
	}
}

func TestStudyNamesAndStudies(t *testing.T) {
	storage := testStorage(t)
	mustExecute(t, "create-study", "--storage", storage, "--study-name", "b")
	mustExecute(t, "create-study", "--storage", storage, "--study-name", "a", "--directions", "minimize", "--directions", "maximize")

	out := mustExecute(t, "study-names", "--storage", storage, "-f", "value")
	if diff := deep.Equal(strings.Fields(out), []string{"b", "a"}); diff != nil {
		t.Errorf("study-names: %v (output %q)", diff, out)
	}

	out = mustExecute(t, "studies", "--storage", storage, "-f", "json")
	var studies []map[string]any
	if err := json.Unmarshal([]byte(out), &studies); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(studies) != 2 {
		t.Fatalf("studies = %v", studies)
	}
	byName := map[string]map[string]any{}
	for _, s := range studies {
		byName[s["name"].(string)] = s
	}
	if byName["b"]["direction"] != "MINIMIZE" || byName["b"]["n_trials"] != float64(0) {
		t.Errorf("study b = %v", byName["b"])
	}
	if diff := deep.Equal(byName["a"]["direction"], []any{"MINIMIZE", "MAXIMIZE"}); diff != nil {
		t.Errorf("study a direction: %v", diff)
	}

	out = mustExecute(t, "studies", "--storage", storage)
	if !strings.Contains(out, "| name ") || !strings.Contains(out, "n_trials") {
		t.Errorf("studies table:\n%s", out)
	}

	if _, err := execute(t, "studies", "--storage", storage, "-f", "csv"); err == nil {
		t.Error("expected an unknown format error")
	}
}

func TestDeleteStudy(t *testing.T) {
	storage := testStorage(t)
	mustExecute(t, "create-study", "--storage", storage, "--study-name", "doomed")
	mustExecute(t, "ask", "--storage", storage, "--study-name", "doomed")

	mustExecute(t, "delete-study", "--storage", storage, "--study-name", "doomed")
	out := mustExecute(t, "study-names", "--storage", storage, "-f", "value")
	if strings.TrimSpace(out) != "" {
		t.Errorf("study-names after delete = %q", out)
	}

	_, err := execute(t, "delete-study", "--storage", storage, "--study-name", "doomed")
	if !errors.Is(err, domain.ErrStudyNotFound) {
		t.Errorf("deleting a missing study err = %v", err)
	}
}

func TestStudySetUserAttr(t *testing.T) {
	storage := testStorage(t)
	mustExecute(t, "create-study", "--storage", storage, "--study-name", "s")
	mustExecute(t, "study", "set-user-attr", "--storage", storage, "--study-name", "s", "--key", "dataset", "--value", "cifar10")

	out := mustExecute(t, "studies", "--storage", storage, "-f", "json", "--flatten")
	var studies []map[string]any
	if err := json.Unmarshal([]byte(out), &studies); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(studies) != 1 || studies[0]["user_attrs_dataset"] != "cifar10" {
		t.Errorf("studies = %v", studies)
	}

	if _, err := execute(t, "study", "set-user-attr", "--storage", storage, "--study-name", "missing", "--key", "k", "--value", "v"); err == nil {
		t.Error("expected an error for a missing study")
	}
}

func TestMissingStorage(t *testing.T) {
	testStorage(t)
	_, err := execute(t, "study-names")
	if err == nil || !strings.Contains(err.Error(), "MTUNE_STORAGE") {
		t.Errorf("err = %v", err)
	}

	_, err = execute(t, "study-names", "--storage", "mysql://localhost/db")
	if err == nil || !strings.Contains(err.Error(), "unsupported storage URL") {
		t.Errorf("err = %v", err)
	}
}
