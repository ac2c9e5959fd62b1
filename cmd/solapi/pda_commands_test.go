package main

import (
	"strings"
	"testing"

	"github.com/brojonat/solapi/service/solana"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPDADerive_MatchesPrereqRecord(t *testing.T) {
	user, err := solana.ParsePublicKey(testRecipient)
	require.NoError(t, err)
	want, err := solana.FindPrereqPDA(user, solana.Turbin3PrereqProgramID)
	require.NoError(t, err)

	out, err := runCLI(t, "--jq", ".address", "pda", "derive",
		"--program", solana.Turbin3PrereqProgramID.String(),
		"--seed", "prereqs",
		"--pubkey-seed", testRecipient,
	)
	require.NoError(t, err)
	assert.Equal(t, want.Address.String(), strings.TrimSpace(out))
}

func TestPDADerive_RequiresSeed(t *testing.T) {
	_, err := runCLI(t, "pda", "derive", "--program", solana.Turbin3PrereqProgramID.String())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one")
}

func TestPDADerive_SeedTooLong(t *testing.T) {
	_, err := runCLI(t, "pda", "derive",
		"--program", solana.Turbin3PrereqProgramID.String(),
		"--seed", strings.Repeat("x", 33),
	)
	require.Error(t, err)
}

func TestATA(t *testing.T) {
	owner, err := solana.ParsePublicKey(testRecipient)
	require.NoError(t, err)
	mint := solana.MPLCoreProgramID
	want, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)

	out, err := runCLI(t, "pda", "ata", "--owner", testRecipient, "--mint", mint.String())
	require.NoError(t, err)
	assert.Contains(t, out, want.Address.String())
}
