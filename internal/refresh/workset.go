package refresh

import (
	"sessionkeeper-go/internal/account"
	"sessionkeeper-go/internal/credential"
)

// Cause says why an account was selected for refresh.
type Cause string

const (
	CauseMissing Cause = "missing"
	CauseInvalid Cause = "invalid"
	CauseForced  Cause = "force_update"
)

// Item is one entry of a work set.
type Item struct {
	Account account.Account
	Cause   Cause
}

// ComputeWorkSet selects the eligible accounts whose credential is absent,
// judged invalid, or flagged for a forced update. Accounts appear once, in
// registry order. A credential with no verdict counts as invalid.
//
// When the store is empty and bootstrap is false only forced accounts are
// selected; a cold store then has to be filled explicitly.
func ComputeWorkSet(accounts []account.Account, creds map[string]credential.Credential, verdicts map[string]credential.Verdict, bootstrap bool) []Item {
	var out []Item
	seen := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		if !a.Eligible() || seen[a.Username] {
			continue
		}
		cause, ok := causeFor(a, creds, verdicts, bootstrap || len(creds) > 0)
		if !ok {
			continue
		}
		seen[a.Username] = true
		out = append(out, Item{Account: a, Cause: cause})
	}
	return out
}

func causeFor(a account.Account, creds map[string]credential.Credential, verdicts map[string]credential.Verdict, includeMissing bool) (Cause, bool) {
	if a.ForceUpdate {
		return CauseForced, true
	}
	if _, ok := creds[a.Username]; !ok {
		return CauseMissing, includeMissing
	}
	if v, ok := verdicts[a.Username]; ok && v.Valid {
		return "", false
	}
	return CauseInvalid, true
}

// Usernames lists the accounts of a work set.
func Usernames(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Account.Username
	}
	return out
}
