package account

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "sessionkeeper-go/internal/errors"
)

func TestParseStatusAndKind(t *testing.T) {
	st, ok := ParseStatus("")
	require.True(t, ok)
	require.Equal(t, StatusNormal, st)
	st, ok = ParseStatus(" Password_Error ")
	require.True(t, ok)
	require.Equal(t, StatusPasswordError, st)
	_, ok = ParseStatus("frozen")
	require.False(t, ok)

	k, ok := ParseKind("qq")
	require.True(t, ok)
	require.Equal(t, KindFederated, k)
	k, ok = ParseKind("acc")
	require.True(t, ok)
	require.Equal(t, KindStandard, k)
	_, ok = ParseKind("wechat")
	require.False(t, ok)
}

func TestEligibility(t *testing.T) {
	accounts := []Account{
		{Username: "a", Enabled: true, Status: StatusNormal},
		{Username: "b", Enabled: true, Status: StatusBanned},
		{Username: "c", Enabled: true, Status: StatusPasswordError},
		{Username: "d", Enabled: false, Status: StatusNormal},
	}
	got := Eligible(accounts)
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].Username)
	require.Equal(t, "c", got[1].Username)
}

func TestStatusFor(t *testing.T) {
	st, ok := StatusFor(apperrors.Banned)
	require.True(t, ok)
	require.Equal(t, StatusBanned, st)
	st, ok = StatusFor(apperrors.PasswordError)
	require.True(t, ok)
	require.Equal(t, StatusPasswordError, st)
	_, ok = StatusFor(apperrors.UnknownNotice)
	require.False(t, ok)
}

const accountsYAML = `
accounts:
  - username: alice
    password: pw1
    phone: "13800000001"
  - username: bob
    password: pw2
    kind: qq
    enterprise: other
  - username: carol
    enabled: false
    code_mode: webhook
    webhook_url: http://codes.local/{phone}
  - username: alice
    password: dup
  - password: nameless
`

func writeAccounts(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestFileRegistryList(t *testing.T) {
	r := NewFileRegistry(writeAccounts(t, accountsYAML), "jd")
	ctx := context.Background()

	all, err := r.ListAccounts(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, Account{Username: "alice", Password: "pw1", Phone: "13800000001", Enabled: true,
		Status: StatusNormal, Kind: KindStandard, Enterprise: "jd"}, all[0])
	require.Equal(t, KindFederated, all[1].Kind)
	require.False(t, all[2].Enabled)
	require.Equal(t, "webhook", all[2].CodeMode)

	jd, err := r.ListAccounts(ctx, "jd")
	require.NoError(t, err)
	require.Len(t, jd, 2)
	require.Equal(t, "carol", jd[1].Username)
}

func TestFileRegistryBareList(t *testing.T) {
	r := NewFileRegistry(writeAccounts(t, "- username: solo\n  password: pw\n"), "jd")
	all, err := r.ListAccounts(context.Background(), "jd")
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.True(t, all[0].Enabled)
}

func TestFileRegistryUpdateStatus(t *testing.T) {
	path := writeAccounts(t, accountsYAML)
	original, err := os.ReadFile(path)
	require.NoError(t, err)
	r := NewFileRegistry(path, "jd")
	ctx := context.Background()

	require.NoError(t, r.UpdateStatus(ctx, "alice", StatusBanned))
	err = r.UpdateStatus(ctx, "nobody", StatusBanned)
	require.True(t, errors.Is(err, ErrNotFound))

	all, err := r.ListAccounts(ctx, "jd")
	require.NoError(t, err)
	require.Equal(t, StatusBanned, all[0].Status)
	require.False(t, all[0].Eligible())

	// A fresh registry over the same file sees the persisted status.
	again, err := NewFileRegistry(path, "jd").ListAccounts(ctx, "jd")
	require.NoError(t, err)
	require.Equal(t, StatusBanned, again[0].Status)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, original, after)
	require.FileExists(t, path+stateSuffix)

	require.NoError(t, r.UpdateStatus(ctx, "alice", StatusNormal))
	all, err = r.ListAccounts(ctx, "jd")
	require.NoError(t, err)
	require.Equal(t, StatusNormal, all[0].Status)
}

func TestFileRegistryErrors(t *testing.T) {
	_, err := NewFileRegistry(filepath.Join(t.TempDir(), "missing.yaml"), "jd").ListAccounts(context.Background(), "")
	require.Error(t, err)

	_, err = NewFileRegistry(writeAccounts(t, "accounts: [\n"), "jd").ListAccounts(context.Background(), "")
	require.Error(t, err)
}
