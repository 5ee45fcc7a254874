package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/ackinacki-farmer/internal/storage"
	"github.com/ackinacki-farmer/internal/types"
)

func TestUpdatePersistsAndReloads(t *testing.T) {
	store, err := storage.NewFileStorage(filepath.Join(t.TempDir(), "status.json"))
	if err != nil {
		t.Fatal(err)
	}

	m := NewManager(store)
	if got := m.GetStats().Round; got != 0 {
		t.Errorf("initial round: got %d; want 0", got)
	}

	m.Update([]types.AccountStatus{
		{Index: 0, Account: "...aaaaaa", Success: true},
		{Index: 1, Account: "...bbbbbb", Error: "boom"},
	}, types.Stats{Round: 7, Accounts: 2, Succeeded: 1, Failed: 1})
	m.Close()

	acct, ok := m.Account(1)
	if !ok || acct.Error != "boom" {
		t.Errorf("Account(1): got %+v, %v", acct, ok)
	}
	if _, ok := m.Account(5); ok {
		t.Error("Account(5) should not exist")
	}

	reloaded := NewManager(store)
	if err := reloaded.LoadFromStorage(); err != nil {
		t.Fatal(err)
	}
	if got := reloaded.GetStats(); got.Round != 7 || got.Failed != 1 {
		t.Errorf("reloaded stats: got %+v", got)
	}
	if got := reloaded.Accounts(); len(got) != 2 {
		t.Errorf("reloaded accounts: got %d; want 2", len(got))
	}
}

func TestAccountsReturnsCopy(t *testing.T) {
	m := NewManager(nil)
	m.Update([]types.AccountStatus{{Index: 0, Account: "...aaaaaa"}}, types.Stats{Round: 1})

	accts := m.Accounts()
	accts[0].Account = "changed"

	if got, _ := m.Account(0); got.Account != "...aaaaaa" {
		t.Errorf("snapshot mutated through Accounts(): %q", got.Account)
	}
}

func TestLoadFromEmptyStorage(t *testing.T) {
	store, err := storage.NewFileStorage(filepath.Join(t.TempDir(), "status.json"))
	if err != nil {
		t.Fatal(err)
	}

	m := NewManager(store)
	if err := m.LoadFromStorage(); err != nil {
		t.Fatal(err)
	}
	if got := m.Accounts(); len(got) != 0 {
		t.Errorf("got %d accounts; want 0", len(got))
	}
}
