package enums

// DeadLetterReason records why the relay gave up on an outbox row.
type DeadLetterReason string

const (
	// DeadLetterUnroutable rows can never be published as stored.
	DeadLetterUnroutable DeadLetterReason = "unroutable"
	// DeadLetterExhausted rows failed every allowed publish attempt.
	DeadLetterExhausted DeadLetterReason = "exhausted"
)

func (r DeadLetterReason) IsValid() bool {
	return r == DeadLetterUnroutable || r == DeadLetterExhausted
}
