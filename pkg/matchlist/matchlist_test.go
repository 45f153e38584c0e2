// Copyright 2025 Hyperlane

package matchlist

import (
	"strings"
	"testing"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/config"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

func domainPtr(d uint32) *uint32 { return &d }

func TestNilWhitelistMatchesEverything(t *testing.T) {
	msg := Candidate{Origin: 1, Destination: 2}
	if !MatchWhitelist(nil, msg) {
		t.Fatal("nil whitelist should match everything")
	}
}

func TestNilBlacklistMatchesNothing(t *testing.T) {
	msg := Candidate{Origin: 1, Destination: 2}
	if MatchBlacklist(nil, msg) {
		t.Fatal("nil blacklist should match nothing")
	}
}

func TestClauseWildcardFields(t *testing.T) {
	list := config.MatchingList{
		{Origin: domainPtr(1)},
	}
	if !matchAny(list, Candidate{Origin: 1, Destination: 999}) {
		t.Fatal("expected match: only origin constrained")
	}
	if matchAny(list, Candidate{Origin: 2, Destination: 999}) {
		t.Fatal("expected no match: origin differs")
	}
}

func TestAddressMatchingIsCaseInsensitive(t *testing.T) {
	sender := types.BytesToH256([]byte{0xAB, 0xCD})
	list := config.MatchingList{
		{SenderAddress: "0x" + strings.ToUpper(strings.TrimPrefix(sender.String(), "0x"))},
	}
	if !matchAny(list, Candidate{Sender: sender}) {
		t.Fatal("expected sender address match")
	}
}

func TestAllowedCombinesWhitelistAndBlacklist(t *testing.T) {
	msg := Candidate{Origin: 1, Destination: 2}
	whitelist := config.MatchingList{{Origin: domainPtr(1)}}
	blacklist := config.MatchingList{{Destination: domainPtr(2)}}

	if Allowed(whitelist, blacklist, msg) {
		t.Fatal("expected blacklist to reject the message")
	}
	if !Allowed(whitelist, nil, msg) {
		t.Fatal("expected whitelist-only match to allow the message")
	}
	if Allowed(config.MatchingList{{Origin: domainPtr(99)}}, nil, msg) {
		t.Fatal("expected non-matching whitelist to reject the message")
	}
}
