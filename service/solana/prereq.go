package solana

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Turbin3Collection is the MPL Core collection the enrollment NFT is minted into.
var Turbin3Collection = solana.MustPublicKeyFromBase58("5ebsp5RChCGK7ssRZMVMufgVZhd2kFbNaotcZ5UvytN2")

// PrereqStatus reports whether a user's enrollment record exists.
type PrereqStatus struct {
	User     solana.PublicKey
	Record   DerivedAddress
	Enrolled bool
	Account  *Account // nil when not enrolled
}

// SubmitRsAccounts are the accounts of a submit_rs call, in instruction order.
type SubmitRsAccounts struct {
	User       solana.PublicKey
	Record     solana.PublicKey
	Mint       solana.PublicKey
	Collection solana.PublicKey
	Authority  solana.PublicKey
}

// NewSubmitRsAccounts derives the record and authority PDAs for user and collection.
func NewSubmitRsAccounts(user, mint, collection, program solana.PublicKey) (SubmitRsAccounts, error) {
	record, err := FindPrereqPDA(user, program)
	if err != nil {
		return SubmitRsAccounts{}, err
	}
	authority, err := FindCollectionAuthorityPDA(collection, program)
	if err != nil {
		return SubmitRsAccounts{}, err
	}
	return SubmitRsAccounts{
		User:       user,
		Record:     record.Address,
		Mint:       mint,
		Collection: collection,
		Authority:  authority.Address,
	}, nil
}

// SubmitRsInstruction builds the raw submit_rs instruction. The instruction has
// no arguments, so its data is the discriminator alone.
func SubmitRsInstruction(program solana.PublicKey, accounts SubmitRsAccounts) solana.Instruction {
	data := make([]byte, len(SubmitRsDiscriminator))
	copy(data, SubmitRsDiscriminator)

	return solana.NewInstruction(program, solana.AccountMetaSlice{
		solana.Meta(accounts.User).WRITE().SIGNER(),
		solana.Meta(accounts.Record).WRITE(),
		solana.Meta(accounts.Mint).WRITE().SIGNER(),
		solana.Meta(accounts.Collection).WRITE(),
		solana.Meta(accounts.Authority),
		solana.Meta(MPLCoreProgramID),
		solana.Meta(solana.SystemProgramID),
	}, data)
}

// PrereqStatus looks up the enrollment record for user under program.
func (c *Client) PrereqStatus(ctx context.Context, user, program solana.PublicKey) (*PrereqStatus, error) {
	record, err := FindPrereqPDA(user, program)
	if err != nil {
		return nil, err
	}
	status := &PrereqStatus{User: user, Record: record}

	acc, err := c.GetAccount(ctx, record.Address)
	switch {
	case errors.Is(err, ErrAccountNotFound):
		return status, nil
	case err != nil:
		return nil, err
	}
	status.Enrolled = true
	status.Account = acc
	return status, nil
}

// SubmitRs mints the completion NFT by calling submit_rs, signed by the user and
// a freshly generated mint keypair. It waits for confirmation like Transfer.
func (c *Client) SubmitRs(ctx context.Context, signer solana.PrivateKey, collection, program solana.PublicKey) (solana.Signature, *SubmitRsAccounts, error) {
	mint, err := GenerateKeypair()
	if err != nil {
		return solana.Signature{}, nil, err
	}
	accounts, err := NewSubmitRsAccounts(signer.PublicKey(), mint.PublicKey(), collection, program)
	if err != nil {
		return solana.Signature{}, nil, err
	}

	tx, err := c.buildTransaction(ctx, signer.PublicKey(), SubmitRsInstruction(program, accounts))
	if err != nil {
		return solana.Signature{}, nil, err
	}
	sig, err := c.signAndSend(ctx, tx, signer, mint)
	if err != nil {
		return solana.Signature{}, nil, err
	}

	c.logger.InfoContext(ctx, "submit_rs submitted",
		"signature", sig.String(),
		"user", accounts.User.String(),
		"mint", accounts.Mint.String(),
	)

	if _, err := c.WaitForConfirmation(ctx, sig, c.commitment); err != nil {
		return sig, &accounts, fmt.Errorf("submit_rs %s: %w", sig, err)
	}
	return sig, &accounts, nil
}
