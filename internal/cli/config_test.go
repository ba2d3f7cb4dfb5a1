package cli

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()

	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	err = os.WriteFile(path, []byte(content), 0o600)
	if err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func Test_LoadConfig_Uses_Defaults_Without_Config_Files(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cfg, err := LoadConfig(LoadConfigInput{WorkDirOverride: dir, Env: map[string]string{}})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.DataDir != ".luxdb" {
		t.Fatalf("data dir = %q, want .luxdb", cfg.DataDir)
	}

	if cfg.DataDirAbs != filepath.Join(dir, ".luxdb") {
		t.Fatalf("abs data dir = %q", cfg.DataDirAbs)
	}

	if cfg.Sources.Global != "" || cfg.Sources.Project != "" {
		t.Fatalf("sources = %+v, want none", cfg.Sources)
	}
}

func Test_LoadConfig_Reads_Project_Config_With_Comments(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeConfig(t, filepath.Join(dir, ConfigFileName), `{
		// where tables live
		"data_dir": "db",
		"lock_timeout_ms": 250,
		"checkpoint_threshold": 50,
	}`)

	cfg, err := LoadConfig(LoadConfigInput{WorkDirOverride: dir, Env: map[string]string{}})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.DataDir != "db" {
		t.Fatalf("data dir = %q, want db", cfg.DataDir)
	}

	if cfg.LockTimeoutMs != 250 || cfg.CheckpointThreshold != 50 {
		t.Fatalf("cfg = %+v, want timeout 250 / threshold 50", cfg)
	}

	if cfg.Sources.Project == "" {
		t.Fatal("project source not recorded")
	}
}

func Test_LoadConfig_Project_Overrides_Global(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	xdg := filepath.Join(dir, "xdg")

	writeConfig(t, filepath.Join(xdg, "luxdb", "config.json"), `{"data_dir": "global-db", "lock_timeout_ms": 100}`)
	writeConfig(t, filepath.Join(dir, ConfigFileName), `{"data_dir": "project-db"}`)

	cfg, err := LoadConfig(LoadConfigInput{
		WorkDirOverride: dir,
		Env:             map[string]string{"XDG_CONFIG_HOME": xdg},
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.DataDir != "project-db" {
		t.Fatalf("data dir = %q, want project override", cfg.DataDir)
	}

	// Fields the project file does not set still come from global.
	if cfg.LockTimeoutMs != 100 {
		t.Fatalf("lock timeout = %d, want global 100", cfg.LockTimeoutMs)
	}
}

func Test_LoadConfig_CLI_Override_Wins(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeConfig(t, filepath.Join(dir, ConfigFileName), `{"data_dir": "project-db"}`)

	cfg, err := LoadConfig(LoadConfigInput{
		WorkDirOverride: dir,
		DataDirOverride: "cli-db",
		Env:             map[string]string{},
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.DataDir != "cli-db" {
		t.Fatalf("data dir = %q, want cli override", cfg.DataDir)
	}
}

func Test_LoadConfig_Fails_When_Explicit_Config_Missing(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(LoadConfigInput{
		WorkDirOverride: t.TempDir(),
		ConfigPath:      "nope.json",
		Env:             map[string]string{},
	})
	if !errors.Is(err, ErrConfigFileNotFound) {
		t.Fatalf("err = %v, want ErrConfigFileNotFound", err)
	}
}

func Test_LoadConfig_Fails_On_Invalid_JSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeConfig(t, filepath.Join(dir, ConfigFileName), `{"data_dir": `)

	_, err := LoadConfig(LoadConfigInput{WorkDirOverride: dir, Env: map[string]string{}})
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("err = %v, want ErrConfigInvalid", err)
	}
}

func Test_LoadConfig_Fails_On_Negative_Timeout(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeConfig(t, filepath.Join(dir, ConfigFileName), `{"data_dir": "db", "lock_timeout_ms": -1}`)

	_, err := LoadConfig(LoadConfigInput{WorkDirOverride: dir, Env: map[string]string{}})
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("err = %v, want ErrConfigInvalid", err)
	}
}
