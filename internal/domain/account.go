package domain

// TokenAccount holds a balance of one settlement asset.
type TokenAccount struct {
	ID      Address `json:"id"`
	Asset   Address `json:"asset"`
	Owner   Address `json:"owner"`
	Balance uint64  `json:"balance"`
}

// Transfer moves Amount from one token account to another. Authority must
// own the source account: a trader for deposits, the market address for
// vault withdrawals.
type Transfer struct {
	From      Address
	To        Address
	Authority Address
	Amount    uint64
}

// ApplyTransfer validates t against the two accounts and returns their
// updated copies. A zero amount is a validated no-op.
func ApplyTransfer(from, to TokenAccount, t Transfer) (TokenAccount, TokenAccount, error) {
	if from.Owner != t.Authority {
		return from, to, ErrTransferUnauthorized
	}
	if from.Asset != to.Asset {
		return from, to, ErrAssetMismatch
	}
	if t.Amount == 0 || from.ID == to.ID {
		return from, to, nil
	}
	if from.Balance < t.Amount {
		return from, to, ErrInsufficientFunds
	}
	if to.Balance > ^uint64(0)-t.Amount {
		return from, to, ErrMathOverflow
	}
	from.Balance -= t.Amount
	to.Balance += t.Amount
	return from, to, nil
}
