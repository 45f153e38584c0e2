// Copyright 2025 Hyperlane

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalYAML = `
originChainName: ethereum
chains:
  ethereum:
    domain: 1
    kind: ethereum
    connection: "http://localhost:8545"
  polygon:
    domain: 137
    kind: ethereum
    connection: "http://localhost:8546"
checkpointSyncer:
  kind: localStorage
  path: /tmp/checkpoints
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, minimalYAML)
	settings, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.MaxRetries != 10 {
		t.Errorf("MaxRetries = %d, want default 10", settings.MaxRetries)
	}
	if settings.SignedCheckpointPollingInterval.Seconds() != 5 {
		t.Errorf("SignedCheckpointPollingInterval = %v, want 5s", settings.SignedCheckpointPollingInterval)
	}
	if len(settings.GasPaymentEnforcement) != 1 || settings.GasPaymentEnforcement[0].Policy != "none" {
		t.Errorf("GasPaymentEnforcement default = %+v, want single none policy", settings.GasPaymentEnforcement)
	}
}

func TestLoadRejectsUnknownOriginChain(t *testing.T) {
	path := writeConfig(t, `
originChainName: nowhere
chains:
  ethereum:
    domain: 1
    kind: ethereum
    connection: "http://localhost:8545"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for originChainName with no matching chains entry")
	}
}

func TestLoadRejectsInvalidChainKind(t *testing.T) {
	path := writeConfig(t, `
originChainName: ethereum
chains:
  ethereum:
    domain: 1
    kind: mainframe
    connection: "http://localhost:8545"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid chain kind")
	}
}

func TestEnvSubstitution(t *testing.T) {
	os.Setenv("HYP_TEST_RPC_URL", "http://injected:8545")
	defer os.Unsetenv("HYP_TEST_RPC_URL")

	path := writeConfig(t, `
originChainName: ethereum
chains:
  ethereum:
    domain: 1
    kind: ethereum
    connection: "${HYP_TEST_RPC_URL}"
  fallback:
    domain: 2
    kind: ethereum
    connection: "${HYP_MISSING_VAR:-http://default:8545}"
`)
	settings, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := settings.Chains["ethereum"].Connection; got != "http://injected:8545" {
		t.Errorf("Connection = %q, want substituted value", got)
	}
	if got := settings.Chains["fallback"].Connection; got != "http://default:8545" {
		t.Errorf("Connection = %q, want default value", got)
	}
}

func TestEnvOverridesTakePrecedence(t *testing.T) {
	os.Setenv("HYP_MAX_RETRIES", "3")
	defer os.Unsetenv("HYP_MAX_RETRIES")

	path := writeConfig(t, minimalYAML)
	settings, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want env override 3", settings.MaxRetries)
	}
}

func TestChainByDomain(t *testing.T) {
	path := writeConfig(t, minimalYAML)
	settings, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	chain, ok := settings.ChainByDomain(137)
	if !ok {
		t.Fatal("expected domain 137 to resolve")
	}
	if chain.Connection != "http://localhost:8546" {
		t.Errorf("Connection = %q", chain.Connection)
	}
	if _, ok := settings.ChainByDomain(9999); ok {
		t.Error("expected unknown domain to not resolve")
	}
}
