package ackinacki

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ID is a remote identifier that may arrive as a JSON number or string.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON emits canonical integers as JSON numbers and everything else,
// such as "007", as a string.
func (id ID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// Timestamp accepts ISO-8601 with or without a zone; zoneless values are UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognised format %q", s)
}

// Profile is the body of GET and PATCH /users/me.
type Profile struct {
	User  ProfileUser `json:"user"`
	Queue *struct {
		Boost float64 `json:"boost"`
	} `json:"queue"`
}

type ProfileUser struct {
	IsAdult *bool

	// ageReported is set when the response carried an is_adult field,
	// null or not.
	ageReported bool
}

func (u *ProfileUser) UnmarshalJSON(data []byte) error {
	var raw struct {
		IsAdult json.RawMessage `json:"is_adult"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	u.IsAdult = nil
	u.ageReported = raw.IsAdult != nil
	if !u.ageReported || bytes.Equal(bytes.TrimSpace(raw.IsAdult), []byte("null")) {
		return nil
	}

	var adult bool
	if err := json.Unmarshal(raw.IsAdult, &adult); err != nil {
		return fmt.Errorf("is_adult: %w", err)
	}
	u.IsAdult = &adult
	return nil
}

// Boost is queue.boost, zero when the queue is absent.
func (p *Profile) Boost() float64 {
	if p == nil || p.Queue == nil {
		return 0
	}
	return p.Queue.Boost
}

// NeedsAgeConfirmation reports an explicit is_adult: null. A profile
// without the field is left alone.
func (p *Profile) NeedsAgeConfirmation() bool {
	return p.User.ageReported && p.User.IsAdult == nil
}

type Popcoin struct {
	ID          ID     `json:"id"`
	TokenSymbol string `json:"token_symbol"`
}

type UserTask struct {
	ID          ID      `json:"id"`
	Name        string  `json:"name"`
	ConstReward float64 `json:"const_reward"`
}

type Popit struct {
	ID       ID        `json:"id"`
	UserTask *UserTask `json:"user_task"`
}

// PendingTask returns the task still to be started, or nil.
func (p Popit) PendingTask() *UserTask {
	if p.UserTask == nil || p.UserTask.ID == "" {
		return nil
	}
	return p.UserTask
}

type UnclaimedReward struct {
	ID      ID      `json:"id"`
	Rewards float64 `json:"rewards"`
}

// Farm is the body of GET /users/tasks/farm/v2. Reward is nil when no farm
// is active.
type Farm struct {
	ID     ID
	Reward *FarmReward
}

type FarmReward struct {
	Reward   float64    `json:"reward"`
	ClaimAt  *Timestamp `json:"claim_at"`
	Metadata *struct {
		StartAt *Timestamp `json:"start_at"`
	} `json:"metadata"`
}

// StartAt is reward.metadata.start_at, or nil.
func (r *FarmReward) StartAt() *Timestamp {
	if r == nil || r.Metadata == nil {
		return nil
	}
	return r.Metadata.StartAt
}

func (f *Farm) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID     ID              `json:"id"`
		Reward json.RawMessage `json:"reward"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Reward == nil {
		return fmt.Errorf("farm response has no reward field")
	}

	f.ID = raw.ID
	f.Reward = nil
	if bytes.Equal(bytes.TrimSpace(raw.Reward), []byte("null")) {
		return nil
	}

	var reward FarmReward
	if err := json.Unmarshal(raw.Reward, &reward); err != nil {
		return fmt.Errorf("farm reward: %w", err)
	}
	f.Reward = &reward
	return nil
}
