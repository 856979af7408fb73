/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"bytes"
	"testing"
)

func TestRootCmd_PersistentFlags(t *testing.T) {
	tests := []struct {
		name         string
		flagName     string
		defaultValue interface{}
		flagType     string
	}{
		{name: "data-dir flag has correct default", flagName: "data-dir", defaultValue: "./data", flagType: "string"},
		{name: "db flag has correct default", flagName: "db", defaultValue: "webkeep.db", flagType: "string"},
		{name: "host flag has correct default", flagName: "host", defaultValue: "localhost", flagType: "string"},
		{name: "port flag has correct default", flagName: "port", defaultValue: 8080, flagType: "int"},
		{name: "workers flag has correct default", flagName: "workers", defaultValue: 2, flagType: "int"},
		{name: "service-role flag has correct default", flagName: "service-role", defaultValue: "full", flagType: "string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var flag interface{}
			var err error

			switch tt.flagType {
			case "string":
				flag, err = rootCmd.PersistentFlags().GetString(tt.flagName)
			case "int":
				flag, err = rootCmd.PersistentFlags().GetInt(tt.flagName)
			}

			if err != nil {
				t.Fatalf("Failed to get flag %s: %v", tt.flagName, err)
			}

			if flag != tt.defaultValue {
				t.Errorf("Flag %s: got %v, want %v", tt.flagName, flag, tt.defaultValue)
			}
		})
	}
}

func TestRootCmd_HasExpectedSubcommands(t *testing.T) {
	want := map[string]bool{"archive": false, "serve": false}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Use]; ok {
			want[cmd.Use] = true
		}
	}
	for use, found := range want {
		if !found {
			t.Errorf("Expected %s subcommand to be registered", use)
		}
	}
}

func TestRootCmd_UsageOutput(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)

	if err := rootCmd.Usage(); err != nil {
		t.Errorf("Usage() returned error: %v", err)
	}

	if buf.String() == "" {
		t.Error("Expected usage output, got empty string")
	}
}

func TestRootCmd_CommandMetadata(t *testing.T) {
	if rootCmd.Use != "webkeep" {
		t.Errorf("Expected Use to be 'webkeep', got %s", rootCmd.Use)
	}

	if rootCmd.Short == "" {
		t.Error("Expected Short description to be set")
	}

	if rootCmd.Long == "" {
		t.Error("Expected Long description to be set")
	}
}
