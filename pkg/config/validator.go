package config

import (
	"fmt"
	"strconv"
)

// Validator performs validation on loaded configuration
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll validates every subsystem and returns the first error found.
func (v *Validator) ValidateAll() error {
	if err := v.validateServer(); err != nil {
		return err
	}
	if err := v.validateWorkflow(); err != nil {
		return err
	}
	if err := v.validateApproval(); err != nil {
		return err
	}
	if err := v.validateMemory(); err != nil {
		return err
	}
	return v.validateLLM()
}

func (v *Validator) validateServer() error {
	s := v.cfg.Server
	if port, err := strconv.Atoi(s.HTTPPort); err != nil || port < 1 || port > 65535 {
		return NewValidationError("server", "HTTP_PORT",
			fmt.Errorf("%w: %q", ErrInvalidValue, s.HTTPPort))
	}
	switch s.LogFormat {
	case "json", "text":
	default:
		return NewValidationError("server", "LOG_FORMAT",
			fmt.Errorf("%w: %q (expected json or text)", ErrInvalidValue, s.LogFormat))
	}
	if s.AgentID == "" {
		return NewValidationError("server", "AGENT_ID", ErrMissingRequiredField)
	}
	return nil
}

func (v *Validator) validateWorkflow() error {
	w := v.cfg.Workflow
	if !w.OperationMode.IsValid() {
		return NewValidationError("workflow", "OPERATION_MODE",
			fmt.Errorf("%w: %q (expected agentic or supervised)", ErrInvalidValue, w.OperationMode))
	}
	if w.MaxRetries < 0 {
		return NewValidationError("workflow", "MAX_RETRIES",
			fmt.Errorf("%w: %d (must be >= 0)", ErrInvalidValue, w.MaxRetries))
	}
	if w.Timeout <= 0 {
		return NewValidationError("workflow", "WORKFLOW_TIMEOUT_SECONDS",
			fmt.Errorf("%w: %s (must be positive)", ErrInvalidValue, w.Timeout))
	}
	if w.MaxConcurrent < 1 {
		return NewValidationError("workflow", "MAX_CONCURRENT_WORKFLOWS",
			fmt.Errorf("%w: %d (must be >= 1)", ErrInvalidValue, w.MaxConcurrent))
	}
	return nil
}

func (v *Validator) validateApproval() error {
	a := v.cfg.Approval
	if !a.TimeoutAction.IsValid() {
		return NewValidationError("approval", "APPROVAL_TIMEOUT_ACTION",
			fmt.Errorf("%w: %q (expected approve, reject, or pending)", ErrInvalidValue, a.TimeoutAction))
	}
	if a.Timeout <= 0 {
		return NewValidationError("approval", "APPROVAL_TIMEOUT_SECONDS",
			fmt.Errorf("%w: %s (must be positive)", ErrInvalidValue, a.Timeout))
	}
	return nil
}

func (v *Validator) validateMemory() error {
	m := v.cfg.Memory
	if m.ExampleDBPath == "" {
		return NewValidationError("memory", "EXAMPLE_DB_PATH", ErrMissingRequiredField)
	}
	if m.RetentionInterval <= 0 {
		return NewValidationError("memory", "MEMORY_RETENTION_INTERVAL",
			fmt.Errorf("%w: %s (must be positive)", ErrInvalidValue, m.RetentionInterval))
	}
	return nil
}

func (v *Validator) validateLLM() error {
	l := v.cfg.LLM
	if !l.Provider.IsValid() {
		return NewValidationError("llm", "LLM_PROVIDER",
			fmt.Errorf("%w: %q (expected anthropic or ollama)", ErrInvalidValue, l.Provider))
	}
	if l.TRMConfidenceFloor < 0 || l.TRMConfidenceFloor > 1 {
		return NewValidationError("llm", "TRM_CONFIDENCE_FLOOR",
			fmt.Errorf("%w: %g (must be in [0,1])", ErrInvalidValue, l.TRMConfidenceFloor))
	}
	return nil
}
