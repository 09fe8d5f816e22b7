package linkcheck

import "strings"

// FullAcct qualifies a local account handle with the instance domain.
// Handles that already contain an '@' are returned unchanged.
func FullAcct(acct, instance string) string {
	if strings.Contains(acct, "@") {
		return acct
	}

	return acct + "@" + instance
}

// Blocklist is an immutable set of fully qualified account handles whose
// posts are ignored. The zero value blocks nobody.
type Blocklist struct {
	accounts map[string]struct{}
}

// NewBlocklist returns a Blocklist containing the given user@domain handles.
func NewBlocklist(accounts ...string) *Blocklist {
	set := make(map[string]struct{}, len(accounts))
	for _, acct := range accounts {
		set[acct] = struct{}{}
	}

	return &Blocklist{accounts: set}
}

// Blocks reports whether the qualified form of acct is on the list. The
// comparison is case-sensitive.
func (b *Blocklist) Blocks(acct, instance string) bool {
	if b == nil {
		return false
	}

	_, blocked := b.accounts[FullAcct(acct, instance)]

	return blocked
}

// Len returns the number of blocked accounts.
func (b *Blocklist) Len() int {
	if b == nil {
		return 0
	}

	return len(b.accounts)
}
