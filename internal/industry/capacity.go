package industry

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/forgetrack/forgetrack/internal/esi"
)

// CapacityBucket maps skills and activity codes to one slot pool. The
// mapping is data, not control flow: swapping the profile never touches
// the computation.
type CapacityBucket struct {
	Name      string  `yaml:"name"`
	BaseSlots int     `yaml:"base-slots"`
	SkillIDs  []int64 `yaml:"skill-ids"`

	// ActivityIDs are the job activity codes that consume a slot from
	// this bucket. Empty with CountsColonies set means the bucket is
	// consumed by colonies instead of jobs.
	ActivityIDs    []int `yaml:"activity-ids"`
	CountsColonies bool  `yaml:"counts-colonies"`
}

// CapacityProfile is the full slot model for a character.
type CapacityProfile struct {
	Buckets []CapacityBucket `yaml:"buckets"`
}

// CapacityUsage is the computed state of one bucket. Used is a raw
// count and may exceed Total: over-allocation is reported, not clamped.
type CapacityUsage struct {
	Name  string `json:"name"`
	Total int    `json:"total"`
	Used  int    `json:"used"`
}

// DefaultCapacityProfile returns the built-in slot model: one free
// manufacturing, research and colony slot extended by the relevant
// skills, and reaction slots granted by skills alone.
func DefaultCapacityProfile() CapacityProfile {
	return CapacityProfile{
		Buckets: []CapacityBucket{
			{
				Name:        "manufacturing",
				BaseSlots:   1,
				SkillIDs:    []int64{3385, 3389},
				ActivityIDs: []int{1},
			},
			{
				Name:        "research",
				BaseSlots:   1,
				SkillIDs:    []int64{3405, 24625},
				ActivityIDs: []int{3, 4, 5, 8},
			},
			{
				Name:        "reactions",
				BaseSlots:   0,
				SkillIDs:    []int64{46242, 46241, 45746},
				ActivityIDs: []int{6},
			},
			{
				Name:           "planets",
				BaseSlots:      1,
				SkillIDs:       []int64{2495},
				CountsColonies: true,
			},
		},
	}
}

// LoadCapacityProfile reads a YAML profile from path. An empty path
// yields the built-in default.
func LoadCapacityProfile(path string) (CapacityProfile, error) {
	if path == "" {
		return DefaultCapacityProfile(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return CapacityProfile{}, fmt.Errorf("reading capacity profile: %w", err)
	}

	var profile CapacityProfile
	if err := yaml.Unmarshal(raw, &profile); err != nil {
		return CapacityProfile{}, fmt.Errorf("parsing capacity profile %q: %w", path, err)
	}
	if len(profile.Buckets) == 0 {
		return CapacityProfile{}, fmt.Errorf("capacity profile %q defines no buckets", path)
	}

	return profile, nil
}

// Compute derives per-bucket totals and raw usage. Total is base slots
// plus the sum of the active levels of the bucket's skills; used counts
// in-flight jobs whose activity code belongs to the bucket, or colonies
// for colony-consuming buckets.
func (p CapacityProfile) Compute(skills []esi.Skill, jobs []esi.Job, colonies int) []CapacityUsage {
	levels := make(map[int64]int, len(skills))
	for _, skill := range skills {
		levels[skill.SkillID] = skill.ActiveSkillLevel
	}

	usage := make([]CapacityUsage, 0, len(p.Buckets))
	for _, bucket := range p.Buckets {
		total := bucket.BaseSlots
		for _, id := range bucket.SkillIDs {
			total += levels[id]
		}

		used := 0
		if bucket.CountsColonies {
			used = colonies
		} else {
			for _, job := range jobs {
				if job.Status == "active" && slices.Contains(bucket.ActivityIDs, job.ActivityID) {
					used++
				}
			}
		}

		usage = append(usage, CapacityUsage{Name: bucket.Name, Total: total, Used: used})
	}

	return usage
}
