package ledger

import (
	"errors"
	"fmt"
	"sort"
)

// Journal moves Amount from CreditAccount to DebitAccount.
type Journal struct {
	DebitAccount  AccountKey `json:"debit_account"`
	CreditAccount AccountKey `json:"credit_account"`
	Amount        uint64     `json:"amount"`
}

// Batch is the set of journals one operation produced.
type Batch struct {
	Op       string    `json:"op"`
	Journals []Journal `json:"journals"`
}

// ErrUnbalanced means the buckets gained or lost money in total.
var ErrUnbalanced = errors.New("ledger: unbalanced movement")

// Validate ensures every journal is a positive transfer between two
// distinct accounts.
func (b *Batch) Validate() error {
	for i, j := range b.Journals {
		if j.Amount == 0 {
			return fmt.Errorf("%s journal %d has zero amount", b.Op, i)
		}
		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("%s journal %d has same debit and credit account %s", b.Op, i, j.DebitAccount.AccountPath())
		}
	}
	return nil
}

// Diff derives the journals that turn before into after. A movement whose
// increases and decreases do not cancel out returns ErrUnbalanced.
//
// Decreases are matched to increases in account order, so the same pair of
// holdings always produces the same journals.
func Diff(op string, before, after Holdings) (Batch, error) {
	type leg struct {
		key    AccountKey
		amount uint64
	}
	var credits, debits []leg
	var out, in uint64

	for _, k := range sortedKeys(before, after) {
		b, a := before[k], after[k]
		switch {
		case a > b:
			debits = append(debits, leg{k, a - b})
			in += a - b
		case b > a:
			credits = append(credits, leg{k, b - a})
			out += b - a
		}
	}
	if in != out {
		return Batch{}, fmt.Errorf("%s moved %d out and %d in: %w", op, out, in, ErrUnbalanced)
	}

	batch := Batch{Op: op}
	for len(credits) > 0 && len(debits) > 0 {
		c, d := &credits[0], &debits[0]
		amount := min(c.amount, d.amount)
		batch.Journals = append(batch.Journals, Journal{
			DebitAccount:  d.key,
			CreditAccount: c.key,
			Amount:        amount,
		})
		c.amount -= amount
		d.amount -= amount
		if c.amount == 0 {
			credits = credits[1:]
		}
		if d.amount == 0 {
			debits = debits[1:]
		}
	}
	return batch, batch.Validate()
}

func sortedKeys(hs ...Holdings) []AccountKey {
	seen := make(map[AccountKey]struct{})
	var keys []AccountKey
	for _, h := range hs {
		for k := range h {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	return keys
}
