package mongo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPeerKeyFor(t *testing.T) {
	req := require.New(t)

	// 与成员顺序无关
	req.Equal("3_7", PeerKeyFor(3, 7))
	req.Equal("3_7", PeerKeyFor(7, 3))
	req.Equal("5_5", PeerKeyFor(5, 5))
}

func TestChatActiveParticipant(t *testing.T) {
	req := require.New(t)

	chat := &Chat{
		Participants: []Participant{
			{UserID: 1, Role: ParticipantRoleAdmin, IsActive: true, JoinedAt: time.Now()},
			{UserID: 2, Role: ParticipantRoleMember, IsActive: true, JoinedAt: time.Now()},
			{UserID: 3, Role: ParticipantRoleMember, IsActive: false, JoinedAt: time.Now()},
		},
	}

	p := chat.ActiveParticipant(1)
	req.NotNil(p)
	req.Equal(ParticipantRoleAdmin, p.Role)

	// 被停用的成员视同不存在
	req.Nil(chat.ActiveParticipant(3))
	req.Nil(chat.ActiveParticipant(9))

	req.Equal(2, chat.ActiveParticipantCount())
}
