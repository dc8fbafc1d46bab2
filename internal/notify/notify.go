// Package notify delivers push notifications and chat-room updates.
// Every call made through here is best-effort: the Dispatcher runs them after
// the state change has committed and only logs failures.
package notify

import (
	"context"
	"net/url"
	"time"

	"github.com/park285/cheese-challenge/internal/msgcat"
)

type Notifier interface {
	NotifyChallengeStart(ctx context.Context, userIDs []string, title, challengeID string) error
	NotifyChallengeEnd(ctx context.Context, userIDs []string, title, challengeID string, succeeded bool, reward int64) error
	NotifyMissionReward(ctx context.Context, userID, title string, missionID int64, rank int, reward int64) error
}

// RoomSpec describes the chat room opened alongside a new challenge.
type RoomSpec struct {
	ChallengeID string    `json:"challenge_id"`
	Title       string    `json:"title"`
	CreatorID   string    `json:"creator_id"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	MaxMember   *int      `json:"max_member,omitempty"`
	Greeting    string    `json:"greeting,omitempty"`
}

// Member identifies a user joining or leaving a room; Nickname feeds the room announcement.
type Member struct {
	UserID   string
	Nickname string
}

type ChatRooms interface {
	CreateRoom(ctx context.Context, spec RoomSpec) error
	AddParticipant(ctx context.Context, challengeID string, member Member) error
	RemoveParticipant(ctx context.Context, challengeID string, member Member) error
}

type pushRequest struct {
	UserIDs []string          `json:"user_ids"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Data    map[string]string `json:"data,omitempty"`
}

// WebhookNotifier renders messages from the catalog and posts them to the push gateway.
type WebhookNotifier struct {
	client *Client
	cat    *msgcat.Catalog
}

func NewWebhookNotifier(client *Client, cat *msgcat.Catalog) *WebhookNotifier {
	return &WebhookNotifier{client: client, cat: cat}
}

func (n *WebhookNotifier) NotifyChallengeStart(ctx context.Context, userIDs []string, title, challengeID string) error {
	if len(userIDs) == 0 {
		return nil
	}
	data := map[string]any{"Title": title}
	return n.client.postJSON(ctx, "/notifications", pushRequest{
		UserIDs: userIDs,
		Title:   n.cat.RenderOr("challenge.start.title", data, "Challenge started"),
		Body:    n.cat.RenderOr("challenge.start.body", data, title),
		Data:    map[string]string{"type": "challenge_start", "challenge_id": challengeID},
	})
}

func (n *WebhookNotifier) NotifyChallengeEnd(ctx context.Context, userIDs []string, title, challengeID string, succeeded bool, reward int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	key, kind := "challenge.end.failure", "challenge_failure"
	if succeeded {
		key, kind = "challenge.end.success", "challenge_success"
	}
	data := map[string]any{"Title": title, "Reward": reward}
	return n.client.postJSON(ctx, "/notifications", pushRequest{
		UserIDs: userIDs,
		Title:   n.cat.RenderOr(key+".title", data, "Challenge finished"),
		Body:    n.cat.RenderOr(key+".body", data, title),
		Data:    map[string]string{"type": kind, "challenge_id": challengeID},
	})
}

func (n *WebhookNotifier) NotifyMissionReward(ctx context.Context, userID, title string, missionID int64, rank int, reward int64) error {
	data := map[string]any{"Title": title, "Rank": rank, "Reward": reward}
	return n.client.postJSON(ctx, "/notifications", pushRequest{
		UserIDs: []string{userID},
		Title:   n.cat.RenderOr("mission.reward.title", data, "Mission reward"),
		Body:    n.cat.RenderOr("mission.reward.body", data, title),
		Data:    map[string]string{"type": "mission_reward", "mission_id": formatID(missionID)},
	})
}

// WebhookChat drives the chat service's room membership endpoints.
type WebhookChat struct {
	client *Client
	cat    *msgcat.Catalog
}

func NewWebhookChat(client *Client, cat *msgcat.Catalog) *WebhookChat {
	return &WebhookChat{client: client, cat: cat}
}

func (c *WebhookChat) CreateRoom(ctx context.Context, spec RoomSpec) error {
	if spec.Greeting == "" {
		spec.Greeting = c.cat.RenderOr("challenge.chat.created", map[string]any{"Title": spec.Title}, "")
	}
	return c.client.postJSON(ctx, "/rooms", spec)
}

type memberRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message,omitempty"`
}

func (c *WebhookChat) AddParticipant(ctx context.Context, challengeID string, member Member) error {
	return c.client.postJSON(ctx, roomMembersPath(challengeID), c.membership("challenge.chat.joined", member))
}

func (c *WebhookChat) RemoveParticipant(ctx context.Context, challengeID string, member Member) error {
	return c.client.deleteJSON(ctx, roomMembersPath(challengeID), c.membership("challenge.chat.left", member))
}

func (c *WebhookChat) membership(key string, member Member) memberRequest {
	req := memberRequest{UserID: member.UserID}
	if member.Nickname != "" {
		req.Message = c.cat.RenderOr(key, map[string]any{"Nickname": member.Nickname}, "")
	}
	return req
}

func roomMembersPath(challengeID string) string {
	return "/rooms/" + url.PathEscape(challengeID) + "/participants"
}
