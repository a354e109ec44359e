package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempINI(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "NEngineConfig.ini")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("writing temp ini: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeTempINI(t, "[DATABASE]\nType=sqlite\n")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Network.NENetNECPort != 6001 {
		t.Errorf("NENetNECPort = %d, want 6001", c.Network.NENetNECPort)
	}
	if c.Network.InterfacePort != 7000 {
		t.Errorf("InterfacePort = %d, want 7000", c.Network.InterfacePort)
	}
}

func TestLoadUnknownDatabaseTypeIsFatal(t *testing.T) {
	path := writeTempINI(t, "[DATABASE]\nType=postgres\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown database type")
	}
}

func TestLoadQJCustomAllowList(t *testing.T) {
	path := writeTempINI(t, "[QJCustom]\nsetValue = 10.0.0.5:55555, 10.0.1.0/24\n")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	entries := c.QJCustom["setValue"]
	if len(entries) != 2 || entries[0] != "10.0.0.5:55555" || entries[1] != "10.0.1.0/24" {
		t.Errorf("QJCustom[setValue] = %v, want 2 entries", entries)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path.ini"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
