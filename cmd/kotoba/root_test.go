package main

import "testing"

func TestIsSubcommand(t *testing.T) {
	cmd := newRootCmd()
	if !isSubcommand(cmd, "translate") {
		t.Errorf("expected translate to be a known subcommand")
	}
	if !isSubcommand(cmd, "list") {
		t.Errorf("expected list to be a known subcommand")
	}
	if isSubcommand(cmd, "my-novel.txt") {
		t.Errorf("did not expect an input filename to be treated as a subcommand")
	}
}

func TestHasAnyFlagSet(t *testing.T) {
	cmd := newRootCmd()
	if hasAnyFlagSet(cmd) {
		t.Errorf("expected no flags set on a fresh command")
	}
	if err := cmd.Flags().Set("debug", "true"); err != nil {
		t.Fatalf("set debug: %v", err)
	}
	if !hasAnyFlagSet(cmd) {
		t.Errorf("expected debug flag to register as set")
	}
}
