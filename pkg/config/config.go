// Copyright 2025 Hyperlane
//
// Agent configuration: the chains map, checkpoint syncer, gas payment
// enforcement policy, and operational knobs shared by the relayer and
// validator binaries. Settings are loaded from a YAML file (with
// ${VAR_NAME} / ${VAR_NAME:-default} substitution, see envsubst.go) and
// then a handful of scalars may be overridden by HYP_-prefixed
// environment variables, following the env-var-override pattern already
// used by this package for the single-binary case.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

// SignerConfig names the key material a chain's outbound transactions (or a
// validator's checkpoint signatures) are signed with. Exactly one of Key or
// Type (for remote signers, e.g. "aws") should be set; Local backends use
// Key directly.
type SignerConfig struct {
	Type string `yaml:"type"`
	Key  string `yaml:"key"`
}

// IndexSettings controls how a chain's Contract-Sync Cursor walks history.
type IndexSettings struct {
	From  uint64 `yaml:"from"`
	Chunk uint64 `yaml:"chunk"`
	Mode  string `yaml:"mode"` // "sequence" or "block"
}

// ChainSetup is one entry of the top-level chains map. Mailbox,
// MerkleTreeHook, and InterchainGasPaymaster are hex contract addresses;
// the abstract schema in spec section 6.5 leaves "how a chain's contracts
// are located" unspecified beyond `connection`, so this build resolves
// them here rather than hardcoding per-chain constants.
type ChainSetup struct {
	Domain                  types.Domain    `yaml:"domain"`
	Kind                    types.ChainKind `yaml:"kind"`
	Connection              string          `yaml:"connection"`
	Mailbox                 string          `yaml:"mailbox"`
	MerkleTreeHook          string          `yaml:"merkleTreeHook"`
	InterchainGasPaymaster  string          `yaml:"interchainGasPaymaster,omitempty"`
	Index                   IndexSettings   `yaml:"index"`
	Signer                  *SignerConfig   `yaml:"signer,omitempty"`
	ReorgPeriod             uint64          `yaml:"reorg_period"`
	TxSubmission            string          `yaml:"tx_submission"` // "classic" or "gelato"
}

// CheckpointSyncerConfig selects and parameterizes the Checkpoint Store
// backend (pkg/checkpointstore).
type CheckpointSyncerConfig struct {
	Kind   string `yaml:"kind"` // "localStorage", "gcs", "s3"
	Path   string `yaml:"path,omitempty"`
	Bucket string `yaml:"bucket,omitempty"`
	Region string `yaml:"region,omitempty"`
}

// MatchListElement is one filter entry; a nil field means "match any value"
// for that field. Domains are compared numerically, addresses as lowercase
// hex.
type MatchListElement struct {
	Origin           *uint32 `yaml:"origin,omitempty"`
	Destination      *uint32 `yaml:"destination,omitempty"`
	SenderAddress    string  `yaml:"senderAddress,omitempty"`
	RecipientAddress string  `yaml:"recipientAddress,omitempty"`
}

// MatchingList is an ordered list of MatchListElement; a message matches the
// list if it matches any element. A nil MatchingList matches everything
// (see pkg/matchlist).
type MatchingList []MatchListElement

// GasPaymentEnforcementPolicy is one entry of the gas_payment_enforcement
// list. Entries are evaluated in order; the first whose MatchingList (or a
// nil MatchingList, matching everything) matches a message governs it.
type GasPaymentEnforcementPolicy struct {
	Policy          string       `yaml:"policy"` // "none", "minimum", "onChainFeeQuoting"
	MinimumPayment  uint64       `yaml:"minimumPayment,omitempty"`
	MatchingList    MatchingList `yaml:"matchingList,omitempty"`
	CoingeckoAPIKey string       `yaml:"coingeckoApiKey,omitempty"`
}

// Settings is the full agent configuration surface, per the agent config
// schema: origin_chain, chains, checkpoint_syncer, gas_payment_enforcement,
// whitelist/blacklist, transaction_gas_limit, signedCheckpointPollingInterval,
// max_retries, metrics_port.
type Settings struct {
	OriginChain                     string                        `yaml:"originChainName"`
	Chains                          map[string]ChainSetup         `yaml:"chains"`
	CheckpointSyncer                CheckpointSyncerConfig        `yaml:"checkpointSyncer"`
	GasPaymentEnforcement           []GasPaymentEnforcementPolicy `yaml:"gasPaymentEnforcement"`
	Whitelist                       MatchingList                  `yaml:"whitelist,omitempty"`
	Blacklist                       MatchingList                  `yaml:"blacklist,omitempty"`
	TransactionGasLimit             uint64                        `yaml:"transactionGasLimit"`
	SignedCheckpointPollingInterval time.Duration                 `yaml:"signedCheckpointPollingInterval"`
	MaxRetries                      int                           `yaml:"maxRetries"`
	MetricsPort                     int                           `yaml:"metricsPort"`
}

func defaultSettings() Settings {
	return Settings{
		GasPaymentEnforcement: []GasPaymentEnforcementPolicy{
			{Policy: "none"},
		},
		SignedCheckpointPollingInterval: 5 * time.Second,
		MaxRetries:                      10,
		MetricsPort:                     9090,
	}
}

// Load reads Settings from the YAML file at path, applying ${VAR}
// substitution before parsing, then layers HYP_-prefixed environment
// overrides for the scalar fields on top.
func Load(path string) (*Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	settings := defaultSettings()
	if err := yaml.Unmarshal([]byte(substituteEnvVars(string(raw))), &settings); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyEnvOverrides(&settings)

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// applyEnvOverrides layers HYP_-prefixed environment variables over the
// scalars a deployment most commonly wants to override without editing the
// checked-in YAML (origin chain, metrics port, retry budget, poll interval).
func applyEnvOverrides(s *Settings) {
	if v := os.Getenv("HYP_ORIGIN_CHAIN"); v != "" {
		s.OriginChain = v
	}
	if v := os.Getenv("HYP_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			s.MetricsPort = port
		}
	}
	if v := os.Getenv("HYP_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.MaxRetries = n
		}
	}
	if v := os.Getenv("HYP_SIGNED_CHECKPOINT_POLLING_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			s.SignedCheckpointPollingInterval = d
		}
	}
	if v := os.Getenv("HYP_TRANSACTION_GAS_LIMIT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			s.TransactionGasLimit = n
		}
	}
}

// Validate checks the invariants Load's callers (the relayer and validator
// binaries) rely on: an origin chain must be named and defined, and every
// gas payment enforcement policy name must be one this build understands.
func (s *Settings) Validate() error {
	if s.OriginChain == "" {
		return fmt.Errorf("config: originChainName is required")
	}
	if _, ok := s.Chains[s.OriginChain]; !ok {
		return fmt.Errorf("config: originChainName %q has no entry in chains", s.OriginChain)
	}
	for name, chain := range s.Chains {
		if !chain.Kind.IsValid() {
			return fmt.Errorf("config: chains.%s: invalid kind %q", name, chain.Kind)
		}
	}
	for i, policy := range s.GasPaymentEnforcement {
		switch policy.Policy {
		case "none", "minimum", "onChainFeeQuoting":
		default:
			return fmt.Errorf("config: gasPaymentEnforcement[%d]: unknown policy %q", i, policy.Policy)
		}
	}
	return nil
}

// ChainByDomain returns the ChainSetup registered under domain, if any.
func (s *Settings) ChainByDomain(domain types.Domain) (ChainSetup, bool) {
	for _, chain := range s.Chains {
		if chain.Domain == domain {
			return chain, true
		}
	}
	return ChainSetup{}, false
}
