package settings

// DB config keys and defaults for settings.
const (
	// SpendThrottleLimitKey overrides the per-user spend action limit per second.
	SpendThrottleLimitKey = "SPEND_THROTTLE_LIMIT"
	// MinFeedbackLengthKey overrides the minimum revision feedback length.
	MinFeedbackLengthKey = "REVISION_MIN_FEEDBACK_LENGTH"
	// DefaultSpendThrottleLimit is the seeded throttle override (0 defers to the config file).
	DefaultSpendThrottleLimit = 0
	// DefaultMinFeedbackLength is the seeded feedback override (0 defers to the config file).
	DefaultMinFeedbackLength = 0
)
