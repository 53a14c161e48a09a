package main

import "testing"

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"run", "serve", "exec-graph", "memory", "config", "version"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestMemoryCmdHasExpireSubcommand(t *testing.T) {
	cmd := buildMemoryCmd()
	for _, sub := range cmd.Commands() {
		if sub.Name() == "expire" {
			return
		}
	}
	t.Fatal("expected memory command to register an expire subcommand")
}

func TestConfigCmdHasValidateAndSchemaSubcommands(t *testing.T) {
	cmd := buildConfigCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, name := range []string{"validate", "schema"} {
		if !names[name] {
			t.Fatalf("expected config command to register a %q subcommand", name)
		}
	}
}

func TestConfigSchemaCmdRejectsUnknownTarget(t *testing.T) {
	cmd := buildConfigSchemaCmd()
	cmd.SetArgs([]string{"--target", "bogus"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error for an unknown schema target")
	}
}

func TestResolveConfigPath(t *testing.T) {
	if got := resolveConfigPath(""); got != defaultConfigName {
		t.Fatalf("resolveConfigPath(\"\") = %q, want %q", got, defaultConfigName)
	}
	if got := resolveConfigPath("custom.yaml"); got != "custom.yaml" {
		t.Fatalf("resolveConfigPath(\"custom.yaml\") = %q, want %q", got, "custom.yaml")
	}
}

func TestExitCodeFor(t *testing.T) {
	if got := exitCodeFor(nil); got != 0 {
		t.Fatalf("exitCodeFor(nil) = %d, want 0", got)
	}
	if got := exitCodeFor(&exitError{code: 40}); got != 40 {
		t.Fatalf("exitCodeFor(exitError{40}) = %d, want 40", got)
	}
}
