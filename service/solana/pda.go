package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Seed prefixes used by the example programs.
const (
	SeedPDA        = "pda"
	SeedPrereqs    = "prereqs"
	SeedCollection = "collection"
)

var (
	// Turbin3PrereqProgramID is the enrollment program the prerequisite records live under.
	Turbin3PrereqProgramID = solana.MustPublicKeyFromBase58("TRBZyQHB3m68FGeVsqTK39Wm4xejadjVhP5MAZaKWDM")

	// MPLCoreProgramID is the Metaplex Core program used by submit_rs.
	MPLCoreProgramID = solana.MustPublicKeyFromBase58("CoREENxT6tW1HoK8ypY1SxRMZTcVPm7R94rH4PZNhX7d")

	// SubmitRsDiscriminator is the Anchor discriminator of the submit_rs instruction.
	SubmitRsDiscriminator = []byte{77, 124, 82, 163, 21, 133, 181, 206}
)

// DerivedAddress is a program derived address with its bump seed.
type DerivedAddress struct {
	Address solana.PublicKey
	Bump    uint8
}

// FindAddress derives the canonical PDA for the given seeds under program.
func FindAddress(program solana.PublicKey, seeds ...[]byte) (DerivedAddress, error) {
	for i, s := range seeds {
		if len(s) > solana.MaxSeedLength {
			return DerivedAddress{}, fmt.Errorf("seed %d is %d bytes, max is %d", i, len(s), solana.MaxSeedLength)
		}
	}
	addr, bump, err := solana.FindProgramAddress(seeds, program)
	if err != nil {
		return DerivedAddress{}, fmt.Errorf("failed to derive program address: %w", err)
	}
	return DerivedAddress{Address: addr, Bump: bump}, nil
}

// FindPDA derives the account initialized by the "pda" example: seeds ["pda", authority].
func FindPDA(authority, program solana.PublicKey) (DerivedAddress, error) {
	return FindAddress(program, []byte(SeedPDA), authority.Bytes())
}

// FindPrereqPDA derives a user's enrollment record: seeds ["prereqs", user].
func FindPrereqPDA(user, program solana.PublicKey) (DerivedAddress, error) {
	return FindAddress(program, []byte(SeedPrereqs), user.Bytes())
}

// FindCollectionAuthorityPDA derives the collection authority: seeds ["collection", collection].
func FindCollectionAuthorityPDA(collection, program solana.PublicKey) (DerivedAddress, error) {
	return FindAddress(program, []byte(SeedCollection), collection.Bytes())
}

// FindAssociatedTokenAddress derives the associated token account for owner and mint.
func FindAssociatedTokenAddress(owner, mint solana.PublicKey) (DerivedAddress, error) {
	addr, bump, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return DerivedAddress{}, fmt.Errorf("failed to derive associated token address: %w", err)
	}
	return DerivedAddress{Address: addr, Bump: bump}, nil
}

// FindMetadataAddress derives the Metaplex token metadata account for mint.
func FindMetadataAddress(mint solana.PublicKey) (DerivedAddress, error) {
	addr, bump, err := solana.FindTokenMetadataAddress(mint)
	if err != nil {
		return DerivedAddress{}, fmt.Errorf("failed to derive metadata address: %w", err)
	}
	return DerivedAddress{Address: addr, Bump: bump}, nil
}
