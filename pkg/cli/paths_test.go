package cli

import (
	"path/filepath"
	"testing"
)

func TestPaths(t *testing.T) {
	p := &Paths{AppName: "brokerdial", HomeDir: "/home/agent"}

	if got, want := p.ConfigFile(), "/home/agent/.brokerdial/brokerdial/config.yaml"; got != want {
		t.Errorf("ConfigFile = %q, want %q", got, want)
	}
	if got, want := p.DataDir(&Context{Name: "prod"}), "/home/agent/.brokerdial/brokerdial/data/prod"; got != want {
		t.Errorf("DataDir = %q, want %q", got, want)
	}
	if got, want := p.DataDir(nil), "/home/agent/.brokerdial/brokerdial/data/default"; got != want {
		t.Errorf("DataDir(nil) = %q, want %q", got, want)
	}
	custom := &Context{Name: "prod", DataDir: "/srv/calls"}
	if got := p.DBDir(custom); got != "/srv/calls/db" {
		t.Errorf("DBDir = %q", got)
	}
	if got := p.FilesDir(custom); got != "/srv/calls/files" {
		t.Errorf("FilesDir = %q", got)
	}
	if got := p.LogPath("call.log"); got != "/home/agent/.brokerdial/brokerdial/logs/call.log" {
		t.Errorf("LogPath = %q", got)
	}
}

func TestEnsureDirs(t *testing.T) {
	p := &Paths{AppName: "brokerdial", HomeDir: t.TempDir()}
	ctx := &Context{Name: "dev"}
	if err := p.EnsureDataDir(ctx); err != nil {
		t.Fatal(err)
	}
	if err := p.EnsureLogDir(); err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(p.DBDir(ctx)) != p.DataDir(ctx) {
		t.Error("db dir not under data dir")
	}
}
