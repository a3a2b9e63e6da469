package models

import "time"

// LeftBehindRecord marks a user whose partner vanished unexpectedly. It drives
// the client's "partner left" notice and, once the user is rematched, carries
// the room to auto-navigate into.
type LeftBehindRecord struct {
	UserName         string    `dynamodbav:"userName" json:"userName"` // Partition key
	PreviousRoom     string    `dynamodbav:"previousRoom" json:"previousRoom"`
	DisconnectedFrom string    `dynamodbav:"disconnectedFrom" json:"disconnectedFrom"`
	CreatedAt        time.Time `dynamodbav:"createdAt" json:"createdAt"`
	Processed        bool      `dynamodbav:"processed" json:"processed"`
	NewRoomName      string    `dynamodbav:"newRoomName,omitempty" json:"newRoomName,omitempty"`
}

// LeftBehindTable is the DynamoDB table name for left-behind records
const LeftBehindTable = "LeftBehindUsers"
