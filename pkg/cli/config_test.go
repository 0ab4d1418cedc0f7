package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brokerdial", "config.yaml")
	cfg, err := LoadConfigWithPath("brokerdial", path)
	if err != nil {
		t.Fatalf("LoadConfigWithPath: %v", err)
	}
	if cfg.Path() != path {
		t.Errorf("Path = %q, want %q", cfg.Path(), path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file not created: %v", err)
	}
	if len(cfg.Contexts) != 0 {
		t.Errorf("Contexts = %v, want empty", cfg.Contexts)
	}
}

func TestConfigContexts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := LoadConfigWithPath("brokerdial", path)
	if err != nil {
		t.Fatal(err)
	}

	if err := cfg.AddContext("prod", &Context{Backend: BackendGemini, APIKey: "key-prod", Debounce: "3s"}); err != nil {
		t.Fatalf("AddContext prod: %v", err)
	}
	if cfg.CurrentContext != "prod" {
		t.Errorf("CurrentContext = %q, want prod", cfg.CurrentContext)
	}
	err = cfg.AddContext("dev", &Context{
		Backend: BackendRealtime,
		S3:      &S3Config{Bucket: "calls", Prefix: "dev"},
	})
	if err != nil {
		t.Fatalf("AddContext dev: %v", err)
	}
	if cfg.CurrentContext != "prod" {
		t.Errorf("second context changed current to %q", cfg.CurrentContext)
	}
	if got := strings.Join(cfg.ListContexts(), ","); got != "dev,prod" {
		t.Errorf("ListContexts = %s", got)
	}

	reloaded, err := LoadConfigWithPath("brokerdial", path)
	if err != nil {
		t.Fatal(err)
	}
	ctx, err := reloaded.ResolveContext("")
	if err != nil {
		t.Fatalf("ResolveContext: %v", err)
	}
	if ctx.Name != "prod" || ctx.APIKey != "key-prod" {
		t.Errorf("resolved %+v", ctx)
	}
	if d, _ := ctx.DebounceDuration(); d != 3*time.Second {
		t.Errorf("DebounceDuration = %v", d)
	}
	dev, err := reloaded.GetContext("dev")
	if err != nil {
		t.Fatal(err)
	}
	if dev.S3 == nil || dev.S3.Bucket != "calls" || dev.S3.Prefix != "dev" {
		t.Errorf("dev s3 = %+v", dev.S3)
	}

	if err := reloaded.UseContext("dev"); err != nil {
		t.Fatal(err)
	}
	if err := reloaded.UseContext("missing"); err == nil {
		t.Error("UseContext(missing) succeeded")
	}
	if err := reloaded.DeleteContext("dev"); err != nil {
		t.Fatal(err)
	}
	if reloaded.CurrentContext != "" {
		t.Errorf("deleting current context left %q", reloaded.CurrentContext)
	}
	if _, err := reloaded.ResolveContext(""); err == nil {
		t.Error("ResolveContext with no current context succeeded")
	}
}

func TestContextValidate(t *testing.T) {
	tests := []struct {
		name string
		ctx  Context
		ok   bool
	}{
		{"realtime", Context{Backend: BackendRealtime}, true},
		{"gemini", Context{Backend: BackendGemini, Debounce: "500ms"}, true},
		{"no backend", Context{}, false},
		{"unknown backend", Context{Backend: "sip"}, false},
		{"bad debounce", Context{Backend: BackendGemini, Debounce: "soon"}, false},
		{"s3 without bucket", Context{Backend: BackendGemini, S3: &S3Config{}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ctx.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("BROKERDIAL_TEST_KEY", "from-env")
	ctx := &Context{}
	if got := ctx.ResolveAPIKey("BROKERDIAL_UNSET_KEY", "BROKERDIAL_TEST_KEY"); got != "from-env" {
		t.Errorf("ResolveAPIKey = %q", got)
	}
	ctx.APIKey = "explicit"
	if got := ctx.ResolveAPIKey("BROKERDIAL_TEST_KEY"); got != "explicit" {
		t.Errorf("ResolveAPIKey = %q", got)
	}
}

func TestExtra(t *testing.T) {
	ctx := &Context{}
	if ctx.GetExtra("x") != "" {
		t.Error("GetExtra on empty context")
	}
	ctx.SetExtra("x", "1")
	if ctx.GetExtra("x") != "1" {
		t.Error("SetExtra lost value")
	}
}

func TestMaskAPIKey(t *testing.T) {
	tests := map[string]string{
		"":                 "",
		"short":            "*****",
		"sk-1234567890abc": "sk-1********0abc",
	}
	for in, want := range tests {
		if got := MaskAPIKey(in); got != want {
			t.Errorf("MaskAPIKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadConfigIfExists(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if cfg := LoadConfigIfExists("brokerdial"); cfg != nil {
		t.Fatalf("LoadConfigIfExists with no file = %+v", cfg)
	}
	if _, err := LoadConfig("brokerdial"); err != nil {
		t.Fatal(err)
	}
	if cfg := LoadConfigIfExists("brokerdial"); cfg == nil {
		t.Error("LoadConfigIfExists after LoadConfig = nil")
	}
}
