package notify

import (
	"context"
	"strconv"
)

// Nop satisfies Notifier and ChatRooms without doing anything.
type Nop struct{}

func (Nop) NotifyChallengeStart(context.Context, []string, string, string) error { return nil }
func (Nop) NotifyChallengeEnd(context.Context, []string, string, string, bool, int64) error {
	return nil
}
func (Nop) NotifyMissionReward(context.Context, string, string, int64, int, int64) error { return nil }
func (Nop) CreateRoom(context.Context, RoomSpec) error                                  { return nil }
func (Nop) AddParticipant(context.Context, string, Member) error                        { return nil }
func (Nop) RemoveParticipant(context.Context, string, Member) error                     { return nil }

func formatID(id int64) string { return strconv.FormatInt(id, 10) }
