package kafka

// Default topic names for the comparison transport
const (
	TopicComparisonRequests = "comparisons.requests"
	TopicComparisonProgress = "comparisons.progress"
	TopicComparisonResults  = "comparisons.results"
)
