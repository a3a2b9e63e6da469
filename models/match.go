package models

import "time"

// Match is an active pairing of two users bound to one provider room. The
// match table is the source of truth for who is currently in a call.
type Match struct {
	RoomName  string    `dynamodbav:"roomName" json:"roomName"` // Partition key, unique per pairing
	User1     string    `dynamodbav:"user1" json:"user1"`
	User2     string    `dynamodbav:"user2" json:"user2"`
	MatchedAt time.Time `dynamodbav:"matchedAt" json:"matchedAt"`
	UseDemo   bool      `dynamodbav:"useDemo" json:"useDemo"`
}

// Contains reports whether userName is one of the two matched users.
func (m Match) Contains(userName string) bool {
	return m.User1 == userName || m.User2 == userName
}

// Other returns the partner of userName, or "" if userName is not in the match.
func (m Match) Other(userName string) string {
	switch userName {
	case m.User1:
		return m.User2
	case m.User2:
		return m.User1
	}
	return ""
}

// MatchesTable is the DynamoDB table name for active matches
const MatchesTable = "RouletteMatches"
