package models

import "time"

// Ticket is one user's membership in the waiting pool. A user holds at most
// one ticket; in_call tickets belong to users who are alone in a still-live
// room and get matched ahead of plain waiting tickets.
type Ticket struct {
	UserName         string    `dynamodbav:"userName" json:"userName"`                                   // Partition key
	JoinedAt         time.Time `dynamodbav:"joinedAt" json:"joinedAt"`                                   // Refreshed on re-enqueue
	State            string    `dynamodbav:"state" json:"state"`                                         // "waiting" or "in_call"
	UseDemo          bool      `dynamodbav:"useDemo" json:"useDemo"`                                     // Demo room pool flag
	RoomName         string    `dynamodbav:"roomName,omitempty" json:"roomName,omitempty"`               // Set when in_call
	LastMatchPartner string    `dynamodbav:"lastMatchPartner,omitempty" json:"lastMatchPartner,omitempty"`
	LastMatchAt      time.Time `dynamodbav:"lastMatchAt,omitempty" json:"lastMatchAt,omitempty"`
}

// TicketsTable is the DynamoDB table name for waiting-pool tickets
const TicketsTable = "RouletteTickets"
