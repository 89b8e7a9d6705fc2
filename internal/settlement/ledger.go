package settlement

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type ledger struct {
	st       *state
	split    Split
	treasury common.Address
}

// stageCredit splits amount, credits both parties and adds value to the reserve.
func (l ledger) stageCredit(b *Batch, signer common.Address, amount, value *big.Int) (*big.Int, *big.Int) {
	solverShare, treasuryShare := l.split.Apply(amount)
	l.credit(b, signer, solverShare)
	l.credit(b, l.treasury, treasuryShare)

	reserve := l.st.reserve
	if b.Reserve != nil {
		reserve = b.Reserve
	}
	b.Reserve = new(big.Int).Add(reserve, value)
	return solverShare, treasuryShare
}

// credit reads through the batch so a signer that is also the treasury is credited twice.
func (l ledger) credit(b *Batch, id common.Address, amount *big.Int) {
	cur, ok := b.Balances[id]
	if !ok {
		cur = l.st.balance(id)
	}
	b.Balances[id] = new(big.Int).Add(cur, amount)
}
