package httptransport

type applyRequest struct {
	Player       string `json:"player"`
	GameAccount  string `json:"game_account"`
	GameUsername string `json:"game_username"`
	Details      string `json:"details"`
}

type decisionRequest struct {
	Reason string `json:"reason"`
	Notes  string `json:"notes"`
}

type moderationRequest struct {
	Reason string `json:"reason"`
}

type linkRequest struct {
	Token  string `json:"token"`
	Player string `json:"player"`
}

// gateRequest identifies the connecting player either by game account (the
// usual case) or directly by player id.
type gateRequest struct {
	GameAccount string `json:"game_account,omitempty"`
	Player      string `json:"player,omitempty"`
	IsOp        bool   `json:"is_op"`
	IsLegacy    bool   `json:"is_legacy"`
}
