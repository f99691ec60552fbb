package kafka

// Topic definitions for Kafka event streaming
const (
	// TopicFlowAlerts carries one FlowAlertEvent per significant ticker, keyed by ticker
	TopicFlowAlerts = "flow.alerts"
)
