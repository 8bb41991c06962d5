package enums

// OutboxDLQErrorReason records why the publisher gave up on an outbox row.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonUndecodable: the stored row has an unknown event type or a
	// payload that no longer matches its schema. Republishing cannot succeed.
	OutboxDLQReasonUndecodable OutboxDLQErrorReason = "undecodable"
	// OutboxDLQReasonNonRetryable: the broker rejected the message outright.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	// OutboxDLQReasonMaxAttempts: transient failures exhausted the retry budget.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
)

// Replayable reports whether an operator can requeue the row unchanged once
// the underlying outage is fixed.
func (r OutboxDLQErrorReason) Replayable() bool {
	return r == OutboxDLQReasonMaxAttempts
}

func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonUndecodable, OutboxDLQReasonNonRetryable, OutboxDLQReasonMaxAttempts:
		return true
	}
	return false
}
