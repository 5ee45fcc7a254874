package types

import "time"

// AccountStatus is the outcome of one account in the latest round
type AccountStatus struct {
	Index          int       `json:"index"`
	Account        string    `json:"account"` // masked token
	ProxyIP        string    `json:"proxy_ip"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	Boost          float64   `json:"boost"`
	TasksExecuted  int       `json:"tasks_executed"`
	TasksSkipped   int       `json:"tasks_skipped"`
	TasksFailed    int       `json:"tasks_failed"`
	RewardsClaimed int       `json:"rewards_claimed"`
	RewardsTotal   float64   `json:"rewards_total"`
	FarmStatus     string    `json:"farm_status,omitempty"`
	WaitSeconds    int       `json:"wait_seconds"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Stats holds round statistics
type Stats struct {
	Round            int       `json:"round"`
	Accounts         int       `json:"accounts"`
	Succeeded        int       `json:"succeeded"`
	Failed           int       `json:"failed"`
	RoundStarted     time.Time `json:"round_started"`
	RoundDurationMs  int64     `json:"round_duration_ms"`
	NextDelaySeconds int       `json:"next_delay_seconds"`
	NextRoundAt      time.Time `json:"next_round_at"`
}

// Snapshot represents the state after a completed round
type Snapshot struct {
	Accounts []AccountStatus `json:"accounts"`
	Stats    Stats           `json:"stats"`
	Updated  time.Time       `json:"updated"`
}
