package config

// OperationMode controls whether remediations require human approval.
type OperationMode string

const (
	// OperationModeAgentic executes selected remediations without approval.
	OperationModeAgentic OperationMode = "agentic"
	// OperationModeSupervised inserts an approval step before execution.
	OperationModeSupervised OperationMode = "supervised"
)

// IsValid checks if the operation mode is valid
func (m OperationMode) IsValid() bool {
	return m == OperationModeAgentic || m == OperationModeSupervised
}

// TimeoutAction defines what happens when an approval request times out.
type TimeoutAction string

const (
	// TimeoutActionApprove treats a timed-out request as approved.
	TimeoutActionApprove TimeoutAction = "approve"
	// TimeoutActionReject treats a timed-out request as rejected.
	TimeoutActionReject TimeoutAction = "reject"
	// TimeoutActionPending leaves the request pending; the workflow
	// observes the timeout and completes with an error.
	TimeoutActionPending TimeoutAction = "pending"
)

// IsValid checks if the timeout action is valid
func (a TimeoutAction) IsValid() bool {
	switch a {
	case TimeoutActionApprove, TimeoutActionReject, TimeoutActionPending:
		return true
	default:
		return false
	}
}

// LLMProviderType defines supported LLM providers
type LLMProviderType string

const (
	// LLMProviderTypeAnthropic is Anthropic Claude API
	LLMProviderTypeAnthropic LLMProviderType = "anthropic"
	// LLMProviderTypeOllama is a local Ollama endpoint
	LLMProviderTypeOllama LLMProviderType = "ollama"
)

// IsValid checks if the LLM provider type is valid
func (t LLMProviderType) IsValid() bool {
	return t == LLMProviderTypeAnthropic || t == LLMProviderTypeOllama
}
