package models

// PairLock is a short-lived mutual-exclusion token for one unordered user
// pair. Whoever holds it may commit a match for that pair; a crashed holder
// self-heals via the expiry.
type PairLock struct {
	PairKey   string `dynamodbav:"pairKey" json:"pairKey"`     // Partition key, sorted "a|b"
	Owner     string `dynamodbav:"owner" json:"owner"`         // Random token of the acquiring attempt
	ExpiresAt int64  `dynamodbav:"expiresAt" json:"expiresAt"` // Epoch seconds, DynamoDB TTL attribute
}

// PairLocksTable is the DynamoDB table name for pair locks
const PairLocksTable = "PairLocks"
