package esi

import "time"

// Skill is one trained character skill.
type Skill struct {
	SkillID            int64 `json:"skill_id"`
	ActiveSkillLevel   int   `json:"active_skill_level"`
	TrainedSkillLevel  int   `json:"trained_skill_level"`
	SkillpointsInSkill int64 `json:"skillpoints_in_skill"`
}

type skillsResponse struct {
	Skills  []Skill `json:"skills"`
	TotalSP int64   `json:"total_sp"`
}

// Job is a raw industry job as returned by the upstream API.
type Job struct {
	JobID           int64     `json:"job_id"`
	ActivityID      int       `json:"activity_id"`
	BlueprintTypeID int64     `json:"blueprint_type_id"`
	ProductTypeID   int64     `json:"product_type_id"`
	Runs            int       `json:"runs"`
	Cost            float64   `json:"cost"`
	Status          string    `json:"status"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	LocationID      int64     `json:"location_id"`
	StationID       int64     `json:"station_id"`
	SystemID        int64     `json:"system_id"`
	CorporationID   int64     `json:"corporation_id"`
}

// Planet is a colonized planet summary.
type Planet struct {
	PlanetID      int64     `json:"planet_id"`
	SolarSystemID int64     `json:"solar_system_id"`
	PlanetType    string    `json:"planet_type"`
	NumPins       int       `json:"num_pins"`
	UpgradeLevel  int       `json:"upgrade_level"`
	LastUpdate    time.Time `json:"last_update"`
}

// Extractor is an extraction unit on a colony.
type Extractor struct {
	PinID      int64     `json:"pin_id"`
	TypeID     int64     `json:"type_id"`
	State      string    `json:"state"`
	StartTime  time.Time `json:"start_time"`
	ExpiryTime time.Time `json:"expiry_time"`
}

// Pin is any installed colony structure.
type Pin struct {
	PinID  int64  `json:"pin_id"`
	TypeID int64  `json:"type_id"`
	State  string `json:"state"`
}

// PlanetDetail is the full colony layout for one planet.
type PlanetDetail struct {
	Extractors []Extractor `json:"extractors"`
	Pins       []Pin       `json:"pins"`
}

// Blueprint is an owned blueprint.
type Blueprint struct {
	ItemID             int64 `json:"item_id"`
	TypeID             int64 `json:"type_id"`
	LocationID         int64 `json:"location_id"`
	MaterialEfficiency int   `json:"material_efficiency"`
	TimeEfficiency     int   `json:"time_efficiency"`
	Runs               int   `json:"runs"`
	Quantity           int   `json:"quantity"`
}

// Asset is one owned item stack.
type Asset struct {
	ItemID       int64  `json:"item_id"`
	TypeID       int64  `json:"type_id"`
	LocationID   int64  `json:"location_id"`
	LocationFlag string `json:"location_flag"`
	Quantity     int64  `json:"quantity"`
}

// TypeInfo is reference data for an item type.
type TypeInfo struct {
	TypeID     int64   `json:"type_id"`
	Name       string  `json:"name"`
	Volume     float64 `json:"volume"`
	GroupID    int64   `json:"group_id"`
	CategoryID int64   `json:"category_id"`
}

// LocationInfo is reference data for a station or structure.
type LocationInfo struct {
	Name           string  `json:"name"`
	SystemID       int64   `json:"system_id"`
	SecurityStatus float64 `json:"security_status"`

	// Kind is "station" or "structure", derived from the id range.
	Kind string `json:"-"`
}

// StationInfo is reference data for an NPC station.
type StationInfo struct {
	StationID int64  `json:"station_id"`
	Name      string `json:"name"`
	SystemID  int64  `json:"system_id"`
	TypeID    int64  `json:"type_id"`
}

// SystemInfo is reference data for a solar system.
type SystemInfo struct {
	SystemID        int64   `json:"system_id"`
	Name            string  `json:"name"`
	SecurityStatus  float64 `json:"security_status"`
	ConstellationID int64   `json:"constellation_id"`
}

// CorporationInfo is reference data for a corporation.
type CorporationInfo struct {
	Name        string `json:"name"`
	Ticker      string `json:"ticker"`
	MemberCount int    `json:"member_count"`
}

// PlanetInfo is reference data for a planet.
type PlanetInfo struct {
	PlanetID int64  `json:"planet_id"`
	Name     string `json:"name"`
	TypeID   int64  `json:"type_id"`
	SystemID int64  `json:"system_id"`
}
