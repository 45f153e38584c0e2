// Copyright 2025 Hyperlane
//
// Matching List (C14): whitelist/blacklist filtering over (origin, sender,
// destination, recipient) tuples, per spec section 4.14. Grounded on the
// MatchingList/MatchListElement shapes defined in pkg/config, which mirror
// the teacher's flat filter-clause structs (pkg/execution credit_checker's
// allow/deny lists) generalized to four independently-wildcardable fields.
package matchlist

import (
	"strings"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/config"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

// Candidate is the tuple a message is matched against.
type Candidate struct {
	Origin      types.Domain
	Sender      types.H256
	Destination types.Domain
	Recipient   types.H256
}

// MatchWhitelist reports whether msg is allowed by a whitelist. A nil or
// empty whitelist matches everything (spec 4.14).
func MatchWhitelist(list config.MatchingList, msg Candidate) bool {
	if len(list) == 0 {
		return true
	}
	return matchAny(list, msg)
}

// MatchBlacklist reports whether msg is rejected by a blacklist. A nil or
// empty blacklist matches nothing.
func MatchBlacklist(list config.MatchingList, msg Candidate) bool {
	if len(list) == 0 {
		return false
	}
	return matchAny(list, msg)
}

// matchAny short-circuits on the first clause satisfied, per spec 4.14.
func matchAny(list config.MatchingList, msg Candidate) bool {
	for _, clause := range list {
		if matchesClause(clause, msg) {
			return true
		}
	}
	return false
}

func matchesClause(clause config.MatchListElement, msg Candidate) bool {
	if clause.Origin != nil && types.Domain(*clause.Origin) != msg.Origin {
		return false
	}
	if clause.Destination != nil && types.Domain(*clause.Destination) != msg.Destination {
		return false
	}
	if clause.SenderAddress != "" && !addressEquals(clause.SenderAddress, msg.Sender) {
		return false
	}
	if clause.RecipientAddress != "" && !addressEquals(clause.RecipientAddress, msg.Recipient) {
		return false
	}
	return true
}

func addressEquals(hex string, value types.H256) bool {
	return strings.EqualFold(strings.TrimPrefix(hex, "0x"), strings.TrimPrefix(value.String(), "0x"))
}

// Allowed reports whether msg passes both the whitelist and blacklist: it
// must match the (possibly wildcard) whitelist and must not match the
// blacklist.
func Allowed(whitelist, blacklist config.MatchingList, msg Candidate) bool {
	if !MatchWhitelist(whitelist, msg) {
		return false
	}
	return !MatchBlacklist(blacklist, msg)
}
