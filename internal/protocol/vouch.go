// Copyright 2024 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"slices"
)

// A state is vouched for once f+1 replicas report it. At
// least one of them is correct and has committed it.

// VouchedRID returns the (f+1)-th highest of the given rids.
// At least one of f+1 replicas is correct and reported a rid
// equal to or greater than the returned one. It returns 0 if
// there are not more than f rids.
func VouchedRID(f int, rids []uint64) uint64 {
	if len(rids) <= f {
		return 0
	}
	sorted := slices.Clone(rids)
	slices.Sort(sorted)
	return sorted[len(sorted)-1-f]
}

// VouchedState returns the freshest account state that at
// least f+1 of the valid responses agree on. The returned
// pending transfers are those reported by at least f+1 of
// the responses with this state.
//
// Responses must be verified and come from distinct
// replicas. It reports false if no state is vouched for.
func VouchedState(f int, responses []CheckResponse) (*CheckResponse, bool) {
	type state struct {
		username string
		balance  int64
		wid      uint64
		pair     string
	}
	groups := map[state][]*CheckResponse{}
	for i := range responses {
		r := &responses[i]
		if r.Message != Valid {
			continue
		}
		s := state{username: r.Username, balance: r.Balance, wid: r.WID, pair: string(r.PairSignature)}
		groups[s] = append(groups[s], r)
	}

	var best []*CheckResponse
	for _, group := range groups {
		if len(group) <= f {
			continue
		}
		if best == nil || group[0].WID > best[0].WID || (group[0].WID == best[0].WID && len(group) > len(best)) {
			best = group
		}
	}
	if best == nil {
		return nil, false
	}

	counts := map[string]int{}
	for _, r := range best {
		seen := map[string]bool{}
		for i := range r.Pending {
			id := string(r.Pending[i].Message().Bytes())
			if !seen[id] {
				seen[id] = true
				counts[id]++
			}
		}
	}
	vouched := &CheckResponse{
		Message:       Valid,
		Target:        bytes.Clone(best[0].Target),
		Username:      best[0].Username,
		Balance:       best[0].Balance,
		WID:           best[0].WID,
		PairSignature: bytes.Clone(best[0].PairSignature),
	}
	for _, r := range best {
		for i := range r.Pending {
			id := string(r.Pending[i].Message().Bytes())
			if counts[id] > f {
				vouched.Pending = append(vouched.Pending, r.Pending[i].Clone())
				counts[id] = 0
			}
		}
	}

	rids := make([]uint64, 0, len(best))
	for _, r := range best {
		rids = append(rids, r.RID)
	}
	vouched.RID = VouchedRID(f, rids)
	return vouched, true
}

// VouchedHistory returns the longest history that is a prefix
// of the history of at least f+1 valid responses, and the
// vouched rid of all valid responses.
//
// Responses must be verified and come from distinct
// replicas. It reports false if there are not more than f
// valid responses.
func VouchedHistory(f int, responses []AuditResponse) ([]Transaction, uint64, bool) {
	valid := make([]*AuditResponse, 0, len(responses))
	for i := range responses {
		if responses[i].Message == Valid {
			valid = append(valid, &responses[i])
		}
	}
	if len(valid) <= f {
		return nil, 0, false
	}

	var history []Transaction
	for _, candidate := range valid {
		if len(candidate.History) <= len(history) {
			continue
		}
		n := 0
		for _, r := range valid {
			if HasPrefix(r.History, candidate.History) {
				n++
			}
		}
		if n > f {
			history = candidate.History
		}
	}

	rids := make([]uint64, 0, len(valid))
	for _, r := range valid {
		rids = append(rids, r.RID)
	}
	history = slices.Clone(history)
	for i := range history {
		history[i] = history[i].Clone()
	}
	return history, VouchedRID(f, rids), true
}

// HasPrefix reports whether txs starts with the
// transactions of prefix.
func HasPrefix(txs, prefix []Transaction) bool {
	if len(txs) < len(prefix) {
		return false
	}
	for i := range prefix {
		if !prefix[i].Equal(&txs[i]) {
			return false
		}
	}
	return true
}
