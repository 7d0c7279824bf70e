package service

import (
	"sort"

	"github.com/noah-isme/study-match-api/internal/models"
)

// Scoring strategy names accepted in configuration and request options.
const (
	ScoringShared        = "shared"
	ScoringComplementary = "complementary"
)

// compatibilityScorer rates how well two students fit the same study group.
// Pairs with no availability overlap always score zero; they stay placeable
// because group-level overlap is what finally matters.
type compatibilityScorer interface {
	Score(a, b models.Student) float64
}

// sharedTopicScorer rewards shared weak topics, weighted by the pair's
// availability overlap in hours.
type sharedTopicScorer struct{}

func (sharedTopicScorer) Score(a, b models.Student) float64 {
	overlap := overlapMinutes(a.Availability, b.Availability)
	if overlap == 0 {
		return 0
	}
	hours := float64(overlap) / 60
	return float64(1+sharedTopicCount(a, b)) * hours
}

// complementaryTopicScorer is the alternate reading: it rewards weak topics
// the two students do NOT share, so one member's strength can cover the
// other's gap.
type complementaryTopicScorer struct{}

func (complementaryTopicScorer) Score(a, b models.Student) float64 {
	overlap := overlapMinutes(a.Availability, b.Availability)
	if overlap == 0 {
		return 0
	}
	shared := sharedTopicCount(a, b)
	distinct := len(a.WeakTopics) + len(b.WeakTopics) - 2*shared
	hours := float64(overlap) / 60
	return float64(1+distinct) * hours
}

func scorerFor(strategy string) compatibilityScorer {
	if strategy == ScoringComplementary {
		return complementaryTopicScorer{}
	}
	return sharedTopicScorer{}
}

func sharedTopicCount(a, b models.Student) int {
	if len(a.WeakTopics) == 0 || len(b.WeakTopics) == 0 {
		return 0
	}
	topics := make(map[string]struct{}, len(a.WeakTopics))
	for _, topic := range a.WeakTopics {
		topics[topic] = struct{}{}
	}
	count := 0
	for _, topic := range b.WeakTopics {
		if _, ok := topics[topic]; ok {
			count++
		}
	}
	return count
}

type groupingConfig struct {
	MinSize         int
	MaxSize         int
	AllowUndersized bool
	Scorer          compatibilityScorer
}

// candidateGroup is a formed group before slot assignment.
type candidateGroup struct {
	Members    []models.Student
	Score      float64
	Undersized bool
}

// coursePartition is the grouping outcome for one course pool.
type coursePartition struct {
	CourseID  string
	Groups    []candidateGroup
	Unmatched []models.UnmatchedStudent
}

// partitionCourse splits one course's student pool into size-bounded groups
// using deterministic greedy bin-packing: students sort by ID, the strongest
// remaining candidate seeds each group, and members join by aggregate
// compatibility while the group's availability intersection stays non-empty.
func partitionCourse(courseID string, pool []models.Student, cfg groupingConfig) coursePartition {
	partition := coursePartition{CourseID: courseID}

	students := make([]models.Student, len(pool))
	copy(students, pool)
	sort.Slice(students, func(i, j int) bool { return students[i].ID < students[j].ID })

	n := len(students)
	switch {
	case n == 0:
		return partition
	case n == 1:
		// A course with a single enrollee never yields a group of one.
		partition.Unmatched = append(partition.Unmatched, models.UnmatchedStudent{
			StudentID: students[0].ID,
			CourseID:  courseID,
			Reason:    models.UnmatchReasonInsufficientPool,
		})
		return partition
	case n < cfg.MinSize:
		if !cfg.AllowUndersized {
			for _, student := range students {
				partition.Unmatched = append(partition.Unmatched, models.UnmatchedStudent{
					StudentID: student.ID,
					CourseID:  courseID,
					Reason:    models.UnmatchReasonInsufficientPool,
				})
			}
			return partition
		}
		group := candidateGroup{Members: students, Undersized: true}
		group.Score = meanPairScore(students, cfg.Scorer)
		partition.Groups = append(partition.Groups, group)
		return partition
	}

	scores := pairScores(students, cfg.Scorer)
	placed := make([]bool, n)
	remaining := n

	for remaining >= cfg.MinSize {
		seed := pickSeed(students, scores, placed)
		members := []int{seed}
		placed[seed] = true
		remaining--

		intersection := unionWindows(students[seed].Availability)
		for len(members) < cfg.MaxSize && remaining > 0 {
			next, keepsOverlap := pickNextMember(students, scores, placed, members, intersection)
			if next < 0 {
				break
			}
			// Once the group is viable, stop rather than admit a member that
			// would empty the common availability.
			if !keepsOverlap && len(members) >= cfg.MinSize {
				break
			}
			members = append(members, next)
			placed[next] = true
			remaining--
			intersection = intersectWindows(intersection, students[next].Availability)
		}

		group := candidateGroup{Members: make([]models.Student, 0, len(members))}
		for _, idx := range members {
			group.Members = append(group.Members, students[idx])
		}
		group.Score = meanPairScore(group.Members, cfg.Scorer)
		partition.Groups = append(partition.Groups, group)
	}

	// Leftover policy: place stragglers one each into groups that can absorb
	// them without exceeding MaxSize or losing their common availability.
	for idx, student := range students {
		if placed[idx] {
			continue
		}
		if target := absorbableGroup(partition.Groups, student, cfg.MaxSize); target >= 0 {
			group := &partition.Groups[target]
			group.Members = append(group.Members, student)
			group.Score = meanPairScore(group.Members, cfg.Scorer)
			placed[idx] = true
			continue
		}
		partition.Unmatched = append(partition.Unmatched, models.UnmatchedStudent{
			StudentID: student.ID,
			CourseID:  courseID,
			Reason:    models.UnmatchReasonNoCompatibleGroup,
		})
	}

	return partition
}

// pickSeed selects the unplaced student with the highest total compatibility
// against the other unplaced students; ties resolve to the lowest ID, which
// is the earliest index after sorting.
func pickSeed(students []models.Student, scores [][]float64, placed []bool) int {
	best := -1
	bestTotal := 0.0
	for i := range students {
		if placed[i] {
			continue
		}
		total := 0.0
		for j := range students {
			if i == j || placed[j] {
				continue
			}
			total += scores[i][j]
		}
		if best < 0 || total > bestTotal {
			best = i
			bestTotal = total
		}
	}
	return best
}

// pickNextMember returns the unplaced student with the highest aggregate
// score against current members, preferring candidates that keep the group's
// availability intersection non-empty. The boolean reports that preference.
func pickNextMember(students []models.Student, scores [][]float64, placed []bool, members []int, intersection []models.AvailabilityWindow) (int, bool) {
	bestKeep, bestAny := -1, -1
	bestKeepScore, bestAnyScore := 0.0, 0.0

	for i := range students {
		if placed[i] {
			continue
		}
		total := 0.0
		for _, m := range members {
			total += scores[i][m]
		}
		if bestAny < 0 || total > bestAnyScore {
			bestAny = i
			bestAnyScore = total
		}
		if len(intersectWindows(intersection, students[i].Availability)) > 0 {
			if bestKeep < 0 || total > bestKeepScore {
				bestKeep = i
				bestKeepScore = total
			}
		}
	}

	if bestKeep >= 0 {
		return bestKeep, true
	}
	return bestAny, false
}

// absorbableGroup finds the first group, in formation order, that can take
// one more member without exceeding maxSize or emptying a previously
// non-empty availability intersection.
func absorbableGroup(groups []candidateGroup, student models.Student, maxSize int) int {
	for gi := range groups {
		group := groups[gi]
		if len(group.Members) >= maxSize {
			continue
		}
		current := memberIntersection(group.Members)
		joined := intersectWindows(current, student.Availability)
		if len(current) == 0 || len(joined) > 0 {
			return gi
		}
	}
	return -1
}

func memberIntersection(members []models.Student) []models.AvailabilityWindow {
	sets := make([][]models.AvailabilityWindow, 0, len(members))
	for _, member := range members {
		sets = append(sets, member.Availability)
	}
	intersection, err := intersectAllWindows(sets)
	if err != nil {
		return nil
	}
	return intersection
}

func pairScores(students []models.Student, scorer compatibilityScorer) [][]float64 {
	n := len(students)
	scores := make([][]float64, n)
	for i := range scores {
		scores[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			score := scorer.Score(students[i], students[j])
			scores[i][j] = score
			scores[j][i] = score
		}
	}
	return scores
}

func meanPairScore(members []models.Student, scorer compatibilityScorer) float64 {
	if len(members) < 2 {
		return 0
	}
	total := 0.0
	pairs := 0
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			total += scorer.Score(members[i], members[j])
			pairs++
		}
	}
	return total / float64(pairs)
}
