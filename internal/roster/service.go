package roster

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	enc "github.com/commonpurse/commonpurse/internal/encoding"
	"github.com/commonpurse/commonpurse/internal/treasury"
)

type MemberAdder interface {
	AddMember(ctx context.Context, req treasury.AddMemberRequest) error
}

type Service struct {
	members MemberAdder
}

func NewService(members MemberAdder) *Service {
	return &Service{members: members}
}

type Conflict struct {
	Entry   Entry
	Message string
}

type Result struct {
	Charset   enc.Charset
	Added     []Entry
	Conflicts []Conflict
	Invalid   []RowError
}

// Import registers every roster entry with the community. Entries already
// holding their role are reported as conflicts and do not stop the import.
func (s *Service) Import(ctx context.Context, communityID uuid.UUID, r io.Reader) (*Result, error) {
	parsed, err := Parse(r)
	if err != nil {
		return nil, &treasury.Error{Kind: treasury.KindValidation, Message: err.Error()}
	}

	res := &Result{Charset: parsed.Charset, Invalid: parsed.Invalid}

	for _, e := range parsed.Entries {
		err := s.members.AddMember(ctx, treasury.AddMemberRequest{
			CommunityID:   communityID,
			WalletAddress: e.WalletAddress,
			Name:          e.Name,
			IsLeader:      e.Role == RoleLeader,
		})

		switch {
		case err == nil:
			res.Added = append(res.Added, e)
		case errors.Is(err, treasury.ErrConflict):
			res.Conflicts = append(res.Conflicts, Conflict{Entry: e, Message: err.Error()})
		case errors.Is(err, treasury.ErrValidation):
			res.Invalid = append(res.Invalid, RowError{Line: e.Line, Message: err.Error()})
		default:
			return nil, fmt.Errorf("line %d: %w", e.Line, err)
		}
	}

	return res, nil
}
