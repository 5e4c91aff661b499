package engine

// API-facing creative
type Creative struct {
	ID       string `json:"id"`
	SlotID   string `json:"slotId,omitempty"`
	Type     int    `json:"type,omitempty"`
	Image    string `json:"img"`
	CTA      string `json:"cta,omitempty"`
	TrackURL string `json:"trackUrl,omitempty"`
}

// CreativeRecord is a creative plus the fields only the engine needs.
type CreativeRecord struct {
	Creative
	Priority int
	Status   string // "ACTIVE" | "INACTIVE"
}

type MatchRequest struct {
	SlotID   string // trimmed at match time
	Type     int    // 0 matches any creative type
	Quantity int
}
