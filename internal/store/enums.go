package store

// Channel ENUMs
const (
	ChannelEmail  = "email"
	ChannelSMS    = "sms"
	ChannelPush   = "push"
	ChannelSystem = "system"
)

// Recipient selector ENUMs
const (
	SelectorKindAll        = "all"
	SelectorKindRole       = "role"
	SelectorKindCourse     = "course"
	SelectorKindIndividual = "individual"
)

// Schedule ENUMs
const (
	ScheduleModeNow       = "now"
	ScheduleModeScheduled = "scheduled"
)

// Campaign ENUMs
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusScheduled = "scheduled"
	CampaignStatusSending   = "sending"
	CampaignStatusSent      = "sent"
	CampaignStatusFailed    = "failed"
	CampaignStatusCancelled = "cancelled"
)

// Delivery attempt ENUMs
const (
	DeliveryOutcomePending   = "pending"
	DeliveryOutcomeDelivered = "delivered"
	DeliveryOutcomeFailed    = "failed"
)
