package refresh

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sessionkeeper-go/internal/account"
	"sessionkeeper-go/internal/credential"
)

func acct(name string) account.Account {
	return account.Account{Username: name, Enabled: true, Status: account.StatusNormal}
}

func cred(name string) credential.Credential {
	return credential.Credential{Username: name, Tokens: map[string]string{"pin": name}}
}

func TestComputeWorkSetUnion(t *testing.T) {
	a, b := acct("A"), acct("B")
	creds := map[string]credential.Credential{"A": cred("A")}
	valid := map[string]credential.Verdict{"A": {Username: "A", Valid: true}}

	work := ComputeWorkSet([]account.Account{a, b}, creds, valid, true)
	require.Equal(t, []string{"B"}, Usernames(work))
	require.Equal(t, CauseMissing, work[0].Cause)

	a.ForceUpdate = true
	work = ComputeWorkSet([]account.Account{a, b}, creds, valid, true)
	require.Equal(t, []string{"A", "B"}, Usernames(work))
	require.Equal(t, CauseForced, work[0].Cause)
}

func TestComputeWorkSetCases(t *testing.T) {
	banned := acct("banned")
	banned.Status = account.StatusBanned
	disabled := acct("disabled")
	disabled.Enabled = false
	pwErr := acct("pw")
	pwErr.Status = account.StatusPasswordError

	cases := []struct {
		name      string
		accounts  []account.Account
		creds     []string
		valid     map[string]bool
		bootstrap bool
		want      []string
	}{
		{"all valid", []account.Account{acct("A"), acct("B")}, []string{"A", "B"}, map[string]bool{"A": true, "B": true}, true, nil},
		{"invalid", []account.Account{acct("A"), acct("B")}, []string{"A", "B"}, map[string]bool{"A": true, "B": false}, true, []string{"B"}},
		{"no verdict counts as invalid", []account.Account{acct("A")}, []string{"A"}, nil, true, []string{"A"}},
		{"duplicates collapse", []account.Account{acct("A"), acct("A")}, nil, nil, true, []string{"A"}},
		{"banned and disabled skipped", []account.Account{banned, disabled, pwErr}, nil, nil, true, []string{"pw"}},
		{"empty store without bootstrap", []account.Account{acct("A"), acct("B")}, nil, nil, false, nil},
		{"bootstrap only gates an empty store", []account.Account{acct("A"), acct("B")}, []string{"A"}, map[string]bool{"A": true}, false, []string{"B"}},
		{"stored but unlisted ignored", []account.Account{acct("A")}, []string{"A", "ghost"}, map[string]bool{"A": true}, true, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			creds := map[string]credential.Credential{}
			for _, n := range tc.creds {
				creds[n] = cred(n)
			}
			verdicts := map[string]credential.Verdict{}
			for n, ok := range tc.valid {
				verdicts[n] = credential.Verdict{Username: n, Valid: ok}
			}
			work := ComputeWorkSet(tc.accounts, creds, verdicts, tc.bootstrap)
			if tc.want == nil {
				require.Empty(t, work)
				return
			}
			require.Equal(t, tc.want, Usernames(work))
		})
	}
}

func TestComputeWorkSetForcedWithoutStore(t *testing.T) {
	a := acct("A")
	a.ForceUpdate = true
	work := ComputeWorkSet([]account.Account{a, acct("B")}, nil, nil, false)
	require.Equal(t, []string{"A"}, Usernames(work))
}
