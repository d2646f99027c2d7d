package mongo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReactionCounts(t *testing.T) {
	req := require.New(t)

	now := time.Now()
	reactions := []Reaction{
		{UserID: 1, Emoji: "👍", ReactedAt: now},
		{UserID: 2, Emoji: "👍", ReactedAt: now},
		{UserID: 1, Emoji: "❤️", ReactedAt: now},
	}

	counts := ReactionCounts(reactions)
	req.Equal(2, counts["👍"])
	req.Equal(1, counts["❤️"])
	req.Len(counts, 2)

	req.Empty(ReactionCounts(nil))
}

func TestHasRead(t *testing.T) {
	req := require.New(t)

	readBy := []ReadReceipt{
		{UserID: 1, ReadAt: time.Now()},
		{UserID: 2, ReadAt: time.Now()},
	}

	req.True(HasRead(readBy, 1))
	req.True(HasRead(readBy, 2))
	req.False(HasRead(readBy, 3))
	req.False(HasRead(nil, 1))
}
