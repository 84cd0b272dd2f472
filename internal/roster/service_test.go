package roster_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commonpurse/commonpurse/internal/roster"
	"github.com/commonpurse/commonpurse/internal/treasury"
)

type fakeMembers struct {
	calls []treasury.AddMemberRequest
	errs  map[string]error
}

func (f *fakeMembers) AddMember(_ context.Context, req treasury.AddMemberRequest) error {
	f.calls = append(f.calls, req)
	return f.errs[req.WalletAddress]
}

func TestService_Import(t *testing.T) {
	communityID := uuid.New()
	members := &fakeMembers{errs: map[string]error{
		"0xbbb": treasury.Conflict(errors.New("0xbbb is already a member")),
		"0xccc": &treasury.Error{Kind: treasury.KindValidation, Message: "invalid fields: WalletAddress (max)"},
	}}

	csv := "wallet_address,name,role\n0xaaa,Alice,leader\n0xbbb,Bob,member\n0xccc,,\n,,\n"

	res, err := roster.NewService(members).Import(context.Background(), communityID, strings.NewReader(csv))
	require.NoError(t, err)

	require.Len(t, members.calls, 3)
	assert.Equal(t, communityID, members.calls[0].CommunityID)
	assert.True(t, members.calls[0].IsLeader)
	assert.Equal(t, "Alice", members.calls[0].Name)
	assert.False(t, members.calls[1].IsLeader)

	require.Len(t, res.Added, 1)
	assert.Equal(t, "0xaaa", res.Added[0].WalletAddress)

	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "0xbbb", res.Conflicts[0].Entry.WalletAddress)

	require.Len(t, res.Invalid, 1)
	assert.Equal(t, 4, res.Invalid[0].Line)
}

func TestService_Import_StopsOnUnexpectedError(t *testing.T) {
	members := &fakeMembers{errs: map[string]error{
		"0xaaa": errors.New("connection reset"),
	}}

	_, err := roster.NewService(members).Import(context.Background(), uuid.New(),
		strings.NewReader("wallet\n0xaaa\n0xbbb\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
	assert.Len(t, members.calls, 1)
}

func TestService_Import_UnreadableFile(t *testing.T) {
	members := &fakeMembers{}

	_, err := roster.NewService(members).Import(context.Background(), uuid.New(),
		strings.NewReader("just,some,columns\n"))
	assert.ErrorIs(t, err, treasury.ErrValidation)
	assert.Empty(t, members.calls)
}
