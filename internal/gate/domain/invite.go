package domain

import "time"

// UnlimitedUses marks an invite key that is never decremented.
const UnlimitedUses = 999

type InviteKey struct {
	Key           string
	CreatedBy     string // user id; empty when minted by the operator
	UsesRemaining int
	CreatedAt     time.Time
}

func (k InviteKey) Unlimited() bool { return k.UsesRemaining == UnlimitedUses }

func (k InviteKey) Exhausted() bool { return !k.Unlimited() && k.UsesRemaining <= 0 }
