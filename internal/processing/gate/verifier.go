// Package gate decides whether a holder address satisfies a link's access
// policy by reading balances on-chain.
package gate

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Akmalwizdom/onyx-shortener/internal/processing/links"
)

// ChainReader is the minimal on-chain read surface the verifier needs. The
// chain JSON-RPC client satisfies it.
type ChainReader interface {
	BalanceOf(ctx context.Context, contract, holder string) (*big.Int, error)
	Decimals(ctx context.Context, contract string) (uint8, error)
}

type Verifier struct {
	reader ChainReader
}

func NewVerifier(reader ChainReader) *Verifier {
	return &Verifier{reader: reader}
}

// Verify returns nil when holder meets the policy threshold,
// links.ErrGateDenied when the balance is definitively short, and an error
// wrapping links.ErrVerification when the on-chain read itself failed. The
// wrapped form keeps transient faults retryable and distinguishable from
// denials all the way to the API surface.
func (v *Verifier) Verify(ctx context.Context, policy links.AccessPolicy, holder string) error {
	if policy.Empty() {
		return nil
	}

	minBalance, err := policy.MinBalanceInt()
	if err != nil {
		return fmt.Errorf("%w: unparseable minimum balance %q", links.ErrVerification, policy.MinBalance)
	}

	switch policy.Type {
	case links.PolicyToken:
		return v.verifyToken(ctx, policy.ContractAddress, holder, minBalance)
	case links.PolicyNFT:
		return v.verifyNFT(ctx, policy.ContractAddress, holder, minBalance)
	default:
		// Unknown variants pass through. Creation-time validation rejects
		// them, so reaching here means legacy data; matching the empty-policy
		// fallback keeps old links usable.
		return nil
	}
}

// verifyToken compares the holder's raw ERC-20 balance against the
// human-readable threshold scaled by the token's decimals.
func (v *Verifier) verifyToken(ctx context.Context, contract, holder string, minBalance *big.Int) error {
	decimals, err := v.reader.Decimals(ctx, contract)
	if err != nil {
		return fmt.Errorf("%w: reading token decimals: %v", links.ErrVerification, err)
	}

	raw, err := v.reader.BalanceOf(ctx, contract, holder)
	if err != nil {
		return fmt.Errorf("%w: reading token balance: %v", links.ErrVerification, err)
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	required := new(big.Int).Mul(minBalance, scale)

	if raw.Cmp(required) < 0 {
		return links.ErrGateDenied
	}
	return nil
}

// verifyNFT compares the holder's owned-item count against the threshold;
// no decimal scaling applies to ERC-721 balances.
func (v *Verifier) verifyNFT(ctx context.Context, contract, holder string, minBalance *big.Int) error {
	count, err := v.reader.BalanceOf(ctx, contract, holder)
	if err != nil {
		return fmt.Errorf("%w: reading nft balance: %v", links.ErrVerification, err)
	}

	if count.Cmp(minBalance) < 0 {
		return links.ErrGateDenied
	}
	return nil
}
