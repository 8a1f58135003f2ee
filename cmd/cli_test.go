package cmd

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	stdout, _, err := executeCLI(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", stdout)
}

func TestSubscriptionLifecycle(t *testing.T) {
	home := t.TempDir()
	accountID := createAccount(t, home, "1ms")

	stdout, _, err := executeCLI(t, home, "subscribe", accountID, "--as", "alice", "--amount", "150")
	require.NoError(t, err)
	assert.Contains(t, stdout, "alice\tsubscribed=true\tbalance=50")

	time.Sleep(10 * time.Millisecond)

	stdout, _, err = executeCLI(t, home, "charge", accountID, "--as", "creator")
	require.NoError(t, err)
	assert.Equal(t, "alice\tcanceled\t50\n", stdout)

	stdout, _, err = executeCLI(t, home, "account", "show", accountID)
	require.NoError(t, err)
	assert.Contains(t, stdout, "owner_balance: 150")
	assert.Contains(t, stdout, "subscribers: 0")

	stdout, _, err = executeCLI(t, home, "account", "reconcile", accountID)
	require.NoError(t, err)
	assert.Contains(t, stdout, "balanced: true")

	stdout, _, err = executeCLI(t, home, "withdraw", accountID, "--as", "creator", "--amount", "150")
	require.NoError(t, err)
	assert.Equal(t, "withdrew 150 to creator\n", stdout)

	stdout, _, err = executeCLI(t, home, "account", "events", accountID, "--json")
	require.NoError(t, err)
	var events []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &events))

	kinds := make([]string, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, e["type"].(string))
	}
	assert.Equal(t, []string{
		"account.created",
		"subscription.subscribed",
		"subscription.canceled",
		"subscription.charged",
		"funds.withdrawn",
	}, kinds)
}

func TestUnsubscribeRefunds(t *testing.T) {
	home := t.TempDir()
	accountID := createAccount(t, home, "720h")

	_, _, err := executeCLI(t, home, "subscribe", accountID, "--as", "alice", "--amount", "250")
	require.NoError(t, err)

	stdout, _, err := executeCLI(t, home, "deposit", accountID, "--as", "alice", "--amount", "50")
	require.NoError(t, err)
	assert.Contains(t, stdout, "balance=200")

	stdout, _, err = executeCLI(t, home, "unsubscribe", accountID, "--as", "alice")
	require.NoError(t, err)
	assert.Equal(t, "refunded 200 to alice\n", stdout)

	_, _, err = executeCLI(t, home, "deposit", accountID, "--as", "alice", "--amount", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not subscribed")
}

func TestOwnerOnlyOperations(t *testing.T) {
	home := t.TempDir()
	accountID := createAccount(t, home, "720h")

	_, _, err := executeCLI(t, home, "charge", accountID, "--as", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")

	_, _, err = executeCLI(t, home, "withdraw", accountID, "--as", "creator", "--amount", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient funds")

	_, _, err = executeCLI(t, home, "subscribe", accountID, "--as", "creator", "--amount", "100")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forbidden")
}

func TestRegistryCommands(t *testing.T) {
	home := t.TempDir()
	first := createAccount(t, home, "720h")
	second := createAccount(t, home, "24h")

	stdout, _, err := executeCLI(t, home, "registry", "owner", "creator")
	require.NoError(t, err)
	assert.Equal(t, first+"\n"+second+"\n", stdout)

	stdout, _, err = executeCLI(t, home, "registry", "count")
	require.NoError(t, err)
	assert.Equal(t, "2\n", stdout)

	stdout, _, err = executeCLI(t, home, "registry", "known", second)
	require.NoError(t, err)
	assert.Equal(t, "true\n", stdout)

	_, _, err = executeCLI(t, home, "subscribe", second, "--as", "bob", "--amount", "100")
	require.NoError(t, err)

	stdout, _, err = executeCLI(t, home, "registry", "subscriber", "bob")
	require.NoError(t, err)
	assert.Equal(t, second+"\n", stdout)

	stdout, _, err = executeCLI(t, home, "account", "list", "--active")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(stdout, "\n"))
	assert.Contains(t, stdout, second)
}

func TestBillCommand(t *testing.T) {
	home := t.TempDir()
	accountID := createAccount(t, home, "1ms")

	_, _, err := executeCLI(t, home, "subscribe", accountID, "--as", "alice", "--amount", "300")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	stdout, _, err := executeCLI(t, home, "bill")
	require.NoError(t, err)
	assert.Contains(t, stdout, "accounts: 1")
	assert.Contains(t, stdout, "charged: 1")
	assert.Contains(t, stdout, "canceled: 0")
}

func TestCommandValidation(t *testing.T) {
	home := t.TempDir()

	_, _, err := executeCLI(t, home, "subscribe", "acct_bogus", "--as", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag(s) \"amount\" not set")

	_, _, err = executeCLI(t, home, "account", "show", "not-an-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid account id")

	_, _, err = executeCLI(t, home, "account", "create", "--as", "creator", "--fee", "0", "--period", "1h")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid fee")
}

func TestAuditTrailLogged(t *testing.T) {
	home := t.TempDir()
	t.Setenv("SUBLEDGER_AUDIT", "true")

	_, stderr, err := executeCLI(t, home,
		"account", "create", "--as", "creator", "--fee", "100", "--period", "1h",
	)
	require.NoError(t, err)
	assert.Contains(t, stderr, "msg=audit")
	assert.Contains(t, stderr, "action=account.created")
}

func createAccount(t *testing.T, home, period string) string {
	t.Helper()
	stdout, _, err := executeCLI(t, home,
		"account", "create",
		"--as", "creator",
		"--fee", "100",
		"--period", period,
		"--description", "Test account",
	)
	require.NoError(t, err)
	return strings.TrimSpace(stdout)
}

func executeCLI(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", home)
	t.Setenv("SUBLEDGER_STORE_DSN", filepath.Join(home, "subledger.db"))
	t.Chdir(home)

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}
