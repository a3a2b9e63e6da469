package models

// Cooldown blocks two specific users from being re-paired until it expires.
// Skips carry a longer expiry than natural call endings.
type Cooldown struct {
	PairKey   string `dynamodbav:"pairKey" json:"pairKey"`     // Partition key, sorted "a|b"
	Kind      string `dynamodbav:"kind" json:"kind"`           // "normal" or "skip"
	ExpiresAt int64  `dynamodbav:"expiresAt" json:"expiresAt"` // Epoch seconds, DynamoDB TTL attribute
}

// CooldownsTable is the DynamoDB table name for pair cooldowns
const CooldownsTable = "PairCooldowns"
