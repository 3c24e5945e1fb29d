package trace

// Kind tags one observable runtime event.
type Kind string

const (
	KindRunStarted         Kind = "run_started"
	KindStatementPublished Kind = "statement_published"
	KindActionPublished    Kind = "action_published"
	KindAuditVerdict       Kind = "audit_verdict"
	KindActorTerminated    Kind = "actor_terminated"
	KindTimeAdvanced       Kind = "time_advanced"
	KindAgreementAmended   Kind = "agreement_amended"
	KindDataplaneRead      Kind = "dataplane_read"
	KindDataplaneWrite     Kind = "dataplane_write"
	KindPublishRejected    Kind = "publish_rejected"
	KindRunFinished        Kind = "run_finished"
	KindRunAborted         Kind = "run_aborted"
)

// Entry is one line of the trace. All fields are scalars, slices or
// pointers (no map[string]any) so json.Marshal output is deterministic.
type Entry struct {
	Seq       uint64 `json:"seq"`
	Timestamp string `json:"ts,omitempty"`
	RunID     string `json:"run_id"`
	Round     uint64 `json:"round"`
	Kind      Kind   `json:"kind"`
	Time      uint64 `json:"time"`

	Who      string   `json:"who,omitempty"`
	To       []string `json:"to,omitempty"`
	ID       string   `json:"id,omitempty"`
	Language string   `json:"language,omitempty"`
	Payload  string   `json:"payload,omitempty"`

	Justification []string `json:"justification,omitempty"`
	Basis         string   `json:"basis,omitempty"`

	ActionID      string   `json:"action_id,omitempty"`
	Valid         *bool    `json:"valid,omitempty"`
	ViolatedRules []string `json:"violated_rules,omitempty"`
	Effects       []string `json:"effects,omitempty"`

	Status  string `json:"status,omitempty"`
	NewTime uint64 `json:"new_time,omitempty"`

	Agreement  string   `json:"agreement,omitempty"`
	Version    string   `json:"version,omitempty"`
	Statements []string `json:"statements,omitempty"`

	Key      string `json:"key,omitempty"`
	Contents string `json:"contents,omitempty"`
	Found    *bool  `json:"found,omitempty"`
	Created  bool   `json:"created,omitempty"`

	Error      string `json:"error,omitempty"`
	Scenario   string `json:"scenario,omitempty"`
	ConfigHash string `json:"config_hash,omitempty"`

	PrevHash string `json:"prev_hash,omitempty"`
}

// Bool returns a pointer for the optional boolean fields.
func Bool(b bool) *bool { return &b }
