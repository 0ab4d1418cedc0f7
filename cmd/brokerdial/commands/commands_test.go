package commands

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eburon/brokerdial/pkg/crm"
)

// run executes the CLI with a config file under a fresh HOME.
func run(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	globalConfig, configErr = nil, nil
	contextName, outputFlag, verbose = "", "table", false
	leadsSeedFile, tasksAll, personaPrompt = "", false, false
	recordingsLead = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(home, "config.yaml")}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func newHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestVersion(t *testing.T) {
	home := newHome(t)
	out, err := run(t, home, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "brokerdial dev") {
		t.Errorf("version = %q", out)
	}
}

func TestConfigCommands(t *testing.T) {
	home := newHome(t)

	out, err := run(t, home, "config", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No contexts configured") {
		t.Errorf("empty list = %q", out)
	}

	if _, err := run(t, home, "config", "add-context", "dev", "--backend", "gemini", "--api-key", "AIzaSyExampleKey1234"); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, home, "config", "add-context", "bad", "--backend", "sip"); err == nil {
		t.Error("unknown backend accepted")
	}
	if _, err := run(t, home, "config", "add-context", "prod", "--backend", "realtime", "--api-key", "", "--s3-bucket", "calls"); err != nil {
		t.Fatal(err)
	}

	out, err = run(t, home, "config", "list")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"dev", "prod", "gemini", "s3://calls/", "AIza************1234"} {
		if !strings.Contains(out, want) {
			t.Errorf("config list missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "AIzaSyExampleKey1234") {
		t.Error("config list leaked the api key")
	}

	out, err = run(t, home, "config", "list", "-o", "json")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "AIzaSyExampleKey1234") {
		t.Error("json config list leaked the api key")
	}

	if _, err := run(t, home, "config", "use-context", "prod"); err != nil {
		t.Fatal(err)
	}
	out, err = run(t, home, "config", "current-context")
	if err != nil || strings.TrimSpace(out) != "prod" {
		t.Errorf("current-context = %q, %v", out, err)
	}
	if _, err := run(t, home, "config", "use-context", "nope"); err == nil {
		t.Error("use-context nope succeeded")
	}
}

func TestLeadsAndTasks(t *testing.T) {
	home := newHome(t)

	out, err := run(t, home, "leads", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No leads") {
		t.Errorf("empty leads = %q", out)
	}

	out, err = run(t, home, "leads", "seed")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Added 4 of 4") {
		t.Errorf("seed = %q", out)
	}
	out, _ = run(t, home, "leads", "seed")
	if !strings.Contains(out, "Added 0 of 4") {
		t.Errorf("second seed = %q", out)
	}

	seed := filepath.Join(home, "leads.yaml")
	os.WriteFile(seed, []byte("leads:\n  - id: \"9\"\n    firstName: Ines\n    lastName: Claes\n    phone: \"+32 470 00 00 00\"\n"), 0o644)
	if _, err := run(t, home, "leads", "seed", "-f", seed); err != nil {
		t.Fatal(err)
	}

	out, err = run(t, home, "leads", "list")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Sophie Dubois", "Thomas Maes", "Ines Claes", "PHONE"} {
		if !strings.Contains(out, want) {
			t.Errorf("leads list missing %q:\n%s", want, out)
		}
	}

	out, err = run(t, home, "leads", "list", "-o", "json")
	if err != nil {
		t.Fatal(err)
	}
	var leads []crm.Lead
	if err := json.Unmarshal([]byte(out), &leads); err != nil {
		t.Fatalf("leads json: %v\n%s", err, out)
	}
	if len(leads) != 5 {
		t.Errorf("leads = %d, want 5", len(leads))
	}

	out, err = run(t, home, "leads", "show", "2")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Peeters") {
		t.Errorf("show = %q", out)
	}
	if _, err := run(t, home, "leads", "show", "404"); err == nil {
		t.Error("show unknown lead succeeded")
	}

	out, err = run(t, home, "tasks", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No tasks") {
		t.Errorf("tasks = %q", out)
	}
	if _, err := run(t, home, "tasks", "done", "missing"); err == nil {
		t.Error("done on unknown task succeeded")
	}

	out, err = run(t, home, "recordings", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No recordings") {
		t.Errorf("recordings = %q", out)
	}
}

func TestPersonaCommands(t *testing.T) {
	home := newHome(t)

	out, err := run(t, home, "persona", "show")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "name: Laurent De Wilde") {
		t.Errorf("default persona = %q", out)
	}

	file := filepath.Join(home, "persona.yaml")
	os.WriteFile(file, []byte("name: Ines Claes\nrole: Rental agent\nobjectives:\n  - Book a viewing\n"), 0o644)
	if _, err := run(t, home, "persona", "set", "-f", file); err != nil {
		t.Fatal(err)
	}
	out, err = run(t, home, "persona", "show", "--prompt")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "You are **Ines Claes**.") || !strings.Contains(out, "- Book a viewing") {
		t.Errorf("prompt = %q", out)
	}

	if _, err := run(t, home, "persona", "reset"); err != nil {
		t.Fatal(err)
	}
	out, _ = run(t, home, "persona", "show")
	if !strings.Contains(out, "Laurent De Wilde") {
		t.Errorf("after reset = %q", out)
	}
}

func TestCallNeedsContext(t *testing.T) {
	home := newHome(t)
	if _, err := run(t, home, "call", "+32 477 12 34 56", "--plain"); err == nil {
		t.Error("call without a context succeeded")
	}
	if _, err := run(t, home, "serve"); err == nil {
		t.Error("serve without a context succeeded")
	}
}

func TestAllowOrigins(t *testing.T) {
	if allowOrigins("") != nil {
		t.Error("empty list should keep the default check")
	}
	check := allowOrigins("http://localhost:5173/, https://crm.example.com")
	for origin, want := range map[string]bool{
		"http://localhost:5173":   true,
		"https://crm.example.com": true,
		"https://evil.example":    false,
		"":                        true,
	} {
		r := httptest.NewRequest("GET", "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		if got := check(r); got != want {
			t.Errorf("origin %q allowed = %v, want %v", origin, got, want)
		}
	}
}
