package storage

// Settings is the singleton configuration written once at initialization.
type Settings struct {
	Admin string `json:"admin"`
	Token string `json:"token"`
}

// Package is a catalog entry: a price in token units and the number of
// seconds it grants.
type Package struct {
	ID           uint32 `json:"id"`
	Price        uint64 `json:"price"`
	DurationSecs uint64 `json:"duration_secs"`
}

// Session is an owner's time balance. StartedAt is zero while paused.
type Session struct {
	Owner         string `json:"owner"`
	RemainingSecs uint64 `json:"remaining_secs"`
	StartedAt     uint64 `json:"started_at"`
}

// Order records a settled purchase that may or may not have been credited.
type Order struct {
	Owner      string `json:"owner"`
	SequenceID uint64 `json:"sequence_id"` // ids are 64-bit; allocation stops at the maximum instead of wrapping
	PackageID  uint32 `json:"package_id"`
	Credited   bool   `json:"credited"`
}
