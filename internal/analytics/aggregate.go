package analytics

import (
	"sort"
	"time"

	"github.com/joao-fontenele/guestdesk/internal/domain"
)

const (
	// ProblemThreshold marks a category whose period average needs attention.
	ProblemThreshold = 7.0
	extremesCount    = 3
)

type CategoryAverage struct {
	Criterion domain.Criterion `json:"criterion"`
	Average   float64          `json:"average"`
}

type DailyBucket struct {
	Date       time.Time         `json:"date"`
	Count      int               `json:"count"`
	Average    float64           `json:"average"`
	Categories []CategoryAverage `json:"categories"`
}

type Band struct {
	Label string  `json:"label"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

var bandBounds = []Band{
	{Label: "very poor", Min: 0, Max: 2},
	{Label: "poor", Min: 2, Max: 4},
	{Label: "fair", Min: 4, Max: 6},
	{Label: "good", Min: 6, Max: 8},
	{Label: "excellent", Min: 8, Max: 10},
}

type Report struct {
	Days         int               `json:"days"`
	From         time.Time         `json:"from"`
	To           time.Time         `json:"to"`
	Count        int               `json:"count"`
	Average      float64           `json:"average"`
	Categories   []CategoryAverage `json:"categories"`
	Daily        []DailyBucket     `json:"daily"`
	Distribution []Band            `json:"distribution"`
	Best         []domain.Review   `json:"best"`
	Worst        []domain.Review   `json:"worst"`
	Trend        *float64          `json:"trend,omitempty"`
	ProblemAreas []CategoryAverage `json:"problem_areas"`
}

// Window returns the [from, to) range of the trailing period ending at now and the equal-length one before it.
func Window(now time.Time, days int) (from, to, prevFrom time.Time) {
	to = now
	from = now.AddDate(0, 0, -days)
	prevFrom = from.AddDate(0, 0, -days)
	return from, to, prevFrom
}

func counted(r domain.Review) bool {
	return r.Status == domain.ReviewStatusApproved || r.Status == domain.ReviewStatusPending
}

func filter(reviews []domain.Review) []domain.Review {
	out := make([]domain.Review, 0, len(reviews))
	for _, r := range reviews {
		if counted(r) {
			out = append(out, r)
		}
	}
	return out
}

// Aggregate summarizes the reviews of one window. previous holds the reviews of the preceding equal-length window.
func Aggregate(current, previous []domain.Review, days int, from, to time.Time) Report {
	current = filter(current)
	previous = filter(previous)

	report := Report{
		Days:         days,
		From:         from,
		To:           to,
		Count:        len(current),
		Average:      compositeAverage(current),
		Categories:   categoryAverages(current),
		Daily:        daily(current, from.Location()),
		Distribution: distribution(current),
		Best:         extremes(current, true),
		Worst:        extremes(current, false),
		ProblemAreas: []CategoryAverage{},
	}

	if len(current) > 0 && len(previous) > 0 {
		delta := report.Average - compositeAverage(previous)
		report.Trend = &delta
	}

	if len(current) > 0 {
		for _, c := range report.Categories {
			if c.Average < ProblemThreshold {
				report.ProblemAreas = append(report.ProblemAreas, c)
			}
		}
	}

	return report
}

func compositeAverage(reviews []domain.Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	var sum float64
	for _, r := range reviews {
		sum += r.Average()
	}
	return sum / float64(len(reviews))
}

func categoryAverages(reviews []domain.Review) []CategoryAverage {
	out := make([]CategoryAverage, len(domain.Criteria))
	for i, c := range domain.Criteria {
		out[i].Criterion = c
		if len(reviews) == 0 {
			continue
		}
		var sum int
		for _, r := range reviews {
			sum += r.Scores.Get(c)
		}
		out[i].Average = float64(sum) / float64(len(reviews))
	}
	return out
}

func daily(reviews []domain.Review, loc *time.Location) []DailyBucket {
	byDay := make(map[time.Time][]domain.Review)
	for _, r := range reviews {
		t := r.CreatedAt.In(loc)
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		byDay[day] = append(byDay[day], r)
	}

	buckets := make([]DailyBucket, 0, len(byDay))
	for day, rs := range byDay {
		buckets = append(buckets, DailyBucket{
			Date:       day,
			Count:      len(rs),
			Average:    compositeAverage(rs),
			Categories: categoryAverages(rs),
		})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Date.Before(buckets[j].Date) })
	return buckets
}

func distribution(reviews []domain.Review) []Band {
	bands := make([]Band, len(bandBounds))
	copy(bands, bandBounds)

	for _, r := range reviews {
		avg := r.Average()
		for i := range bands {
			last := i == len(bands)-1
			if avg >= bands[i].Min && (avg < bands[i].Max || (last && avg <= bands[i].Max)) {
				bands[i].Count++
				break
			}
		}
	}
	return bands
}

// extremes picks the top or bottom reviews by composite score; ties go to the most recent.
func extremes(reviews []domain.Review, best bool) []domain.Review {
	sorted := make([]domain.Review, len(reviews))
	copy(sorted, reviews)

	sort.SliceStable(sorted, func(i, j int) bool {
		ai, aj := sorted[i].Average(), sorted[j].Average()
		if ai != aj {
			if best {
				return ai > aj
			}
			return ai < aj
		}
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	if len(sorted) > extremesCount {
		sorted = sorted[:extremesCount]
	}
	return sorted
}
