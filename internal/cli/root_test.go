package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "treasuryctl", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"migrate"},
		{"seed"},
		{"token"},
		{"community", "show"},
		{"community", "list"},
		{"proposal", "list"},
		{"proposal", "approve"},
		{"proposal", "execute"},
		{"activity"},
	}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestRequiredFlags(t *testing.T) {
	cmd := NewRootCommand()

	seedCmd, _, err := cmd.Find([]string{"seed"})
	require.NoError(t, err)

	fileFlag := seedCmd.Flags().Lookup("file")
	require.NotNil(t, fileFlag)
	assert.Equal(t, "f", fileFlag.Shorthand)

	approveCmd, _, err := cmd.Find([]string{"proposal", "approve"})
	require.NoError(t, err)
	assert.NotNil(t, approveCmd.Flags().Lookup("as"))
}
