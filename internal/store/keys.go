package store

import (
    "strconv"
    "strings"
)

const (
    keyChallengeCreated    = "challenge:idx:created"
    keyChallengeUnstarted  = "challenge:idx:unstarted"
    keyChallengeUnfinished = "challenge:idx:unfinished"
    keyMissionSeq          = "mission:seq"
    keyMissionAll          = "mission:idx:all"
    keyMissionUnsettled    = "mission:idx:unsettled"
)

func ChallengeKey(id string) string { return "challenge:" + strings.TrimSpace(id) }
func MissionKey(id int64) string    { return "mission:" + strconv.FormatInt(id, 10) }
func MissionPartsKey(id int64) string { return MissionKey(id) + ":parts" }
func MissionOrderKey(id int64) string { return MissionKey(id) + ":order" }

func challengeUserIdx(user string) string    { return "challenge:idx:user:" + strings.TrimSpace(user) }
func challengeSuccessIdx(user string) string { return "challenge:idx:success:" + strings.TrimSpace(user) }
func missionUserIdx(user string) string      { return "mission:idx:user:" + strings.TrimSpace(user) }
