package services

import (
	"fmt"
	"sort"

	"civic-task-engine/models"
)

// UserStats is the snapshot badge predicates are evaluated against.
type UserStats struct {
	Points              int64
	TotalTasksCompleted int64
	TasksByCategory     map[string]int64
	Streak              int
	Ambient             models.AmbientImpact
}

// StatsOf builds the snapshot of user with its per-category counts.
func StatsOf(user *models.User, byCategory map[string]int64) UserStats {
	return UserStats{
		Points:              user.Points,
		TotalTasksCompleted: user.TotalTasksCompleted,
		TasksByCategory:     byCategory,
		Streak:              user.Streak,
		Ambient:             user.Ambient,
	}
}

// Predicate is one compiled badge requirement.
type Predicate interface {
	Satisfied(s UserStats) bool
	String() string
}

type minPoints int64

func (p minPoints) Satisfied(s UserStats) bool { return s.Points >= int64(p) }
func (p minPoints) String() string             { return fmt.Sprintf("points >= %d", int64(p)) }

type minTasks int64

func (p minTasks) Satisfied(s UserStats) bool { return s.TotalTasksCompleted >= int64(p) }
func (p minTasks) String() string             { return fmt.Sprintf("tasks >= %d", int64(p)) }

type minCategoryTasks struct {
	category  string
	threshold int64
}

func (p minCategoryTasks) Satisfied(s UserStats) bool {
	return s.TasksByCategory[p.category] >= p.threshold
}
func (p minCategoryTasks) String() string {
	return fmt.Sprintf("tasks[%s] >= %d", p.category, p.threshold)
}

type minStreak int

func (p minStreak) Satisfied(s UserStats) bool { return s.Streak >= int(p) }
func (p minStreak) String() string             { return fmt.Sprintf("streak >= %d", int(p)) }

type ambientMetric string

const (
	metricCO2   ambientMetric = "co2_saved"
	metricWaste ambientMetric = "waste_recycled"
	metricKm    ambientMetric = "km_green"
)

type minAmbient struct {
	metric    ambientMetric
	threshold float64
}

func (p minAmbient) Satisfied(s UserStats) bool {
	var v float64
	switch p.metric {
	case metricCO2:
		v = s.Ambient.CO2Saved
	case metricWaste:
		v = s.Ambient.WasteRecycled
	case metricKm:
		v = s.Ambient.KmGreen
	}
	return v >= p.threshold
}
func (p minAmbient) String() string { return fmt.Sprintf("%s >= %g", p.metric, p.threshold) }

// CompileRequirements turns a requirements object into predicates, one per
// present field. Category thresholds are emitted in key order.
func CompileRequirements(req models.BadgeRequirements) []Predicate {
	var preds []Predicate
	if req.MinPoints != nil {
		preds = append(preds, minPoints(*req.MinPoints))
	}
	if req.MinTasksCompleted != nil {
		preds = append(preds, minTasks(*req.MinTasksCompleted))
	}
	if len(req.TasksByCategory) > 0 {
		cats := make([]string, 0, len(req.TasksByCategory))
		for c := range req.TasksByCategory {
			cats = append(cats, c)
		}
		sort.Strings(cats)
		for _, c := range cats {
			preds = append(preds, minCategoryTasks{category: models.NormalizeCategory(c), threshold: req.TasksByCategory[c]})
		}
	}
	if req.MinStreak != nil {
		preds = append(preds, minStreak(*req.MinStreak))
	}
	if req.MinCO2Saved != nil {
		preds = append(preds, minAmbient{metric: metricCO2, threshold: *req.MinCO2Saved})
	}
	if req.MinWasteRecycled != nil {
		preds = append(preds, minAmbient{metric: metricWaste, threshold: *req.MinWasteRecycled})
	}
	if req.MinKmGreen != nil {
		preds = append(preds, minAmbient{metric: metricKm, threshold: *req.MinKmGreen})
	}
	return preds
}

// AllSatisfied is the AND over preds. An empty set is false rather than
// vacuously true, so a badge stored without requirements is never granted.
// SeedCatalog refuses such badges.
func AllSatisfied(preds []Predicate, s UserStats) bool {
	if len(preds) == 0 {
		return false
	}
	for _, p := range preds {
		if !p.Satisfied(s) {
			return false
		}
	}
	return true
}

// LevelFor returns the highest level whose threshold points meets or exceeds.
func LevelFor(levels []models.Level, points int64) models.Level {
	sorted := make([]models.Level, len(levels))
	copy(sorted, levels)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinPoints > sorted[j].MinPoints })
	for _, l := range sorted {
		if points >= l.MinPoints {
			return l
		}
	}
	if len(sorted) == 0 {
		return models.Level{Number: 1}
	}
	return sorted[len(sorted)-1]
}
